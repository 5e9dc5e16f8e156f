package homeai

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapService_Fetch(t *testing.T) {
	backend := newFakeBackend(t)
	var query map[string]string
	bootstrap := backend.bootstrap
	backend.set(routeBootstrap, func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"board_limit":      r.URL.Query().Get("board_limit"),
			"experiment_limit": r.URL.Query().Get("experiment_limit"),
		}
		bootstrap(w, r)
	})
	client := backend.client()
	ctx := context.Background()
	require.NoError(t, client.Sessions.Ensure(ctx, "u1"))

	snap, err := client.Bootstrap.Fetch(ctx, BootstrapOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"board_limit": "30", "experiment_limit": "50"}, query)

	assert.Equal(t, "u1", snap.Me.UserID)
	balance, ok := snap.Profile.Balance()
	require.True(t, ok)
	assert.Equal(t, 12, balance)
	require.NotNil(t, snap.Profile.Entitlement)
	assert.Equal(t, "pro", snap.Profile.Entitlement.PlanID)
	require.NotNil(t, snap.Profile.Entitlement.ProductID)
	assert.Equal(t, "pro.monthly", *snap.Profile.Entitlement.ProductID)
	assert.NotNil(t, snap.Profile.Entitlement.RenewsAt)
	assert.Nil(t, snap.Profile.Entitlement.ExpiresAt)
	require.NotNil(t, snap.Profile.EffectivePlan)
	require.NotNil(t, snap.Profile.EffectivePlan.DailyCredits)
	assert.Equal(t, 50, *snap.Profile.EffectivePlan.DailyCredits)
	require.NotNil(t, snap.Profile.EffectivePlan.FinalCostCredits)
	assert.Equal(t, 2, *snap.Profile.EffectivePlan.FinalCostCredits)
	require.NotNil(t, snap.Profile.NextCreditResetAt)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), *snap.Profile.NextCreditResetAt)

	require.Len(t, snap.Board.Projects, 1)
	proj := snap.Board.Projects[0]
	assert.Equal(t, "web-1", proj.ProjectID)
	require.NotNil(t, proj.GenerationCount)
	assert.Equal(t, 3, *proj.GenerationCount)
	require.NotNil(t, proj.LastStatus)
	assert.Equal(t, JobCompleted, *proj.LastStatus)

	variant, ok := snap.Variant("paywall_copy")
	assert.True(t, ok)
	assert.Equal(t, "b", variant)
	_, ok = snap.Variant("unknown")
	assert.False(t, ok)

	require.Len(t, snap.Catalog, 2)
	assert.Nil(t, snap.Catalog[0].IsActive, "absent is_active stays unknown")
	assert.Equal(t, []string{}, snap.Catalog[0].Features)

	assert.EqualValues(t, 12, snap.Variables["max_upload_mb"])
	assert.Equal(t, "fal", snap.ProviderDefaults.DefaultProvider)
	assert.Equal(t, []string{"fal", "openai"}, snap.ProviderDefaults.FallbackChain)
	require.NotNil(t, snap.ProviderDefaults.Version)
	assert.Equal(t, 4, *snap.ProviderDefaults.Version)
}

func TestBootstrapService_Fetch_CustomLimits(t *testing.T) {
	var got string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		writeRaw(w, http.StatusOK, bootstrapFixture)
	})
	client.Sessions.Restore(Session{UserID: "u1", AccessToken: "tok"})

	_, err := client.Bootstrap.Fetch(context.Background(), BootstrapOptions{BoardLimit: 5, ExperimentLimit: 7})
	require.NoError(t, err)
	assert.Equal(t, "board_limit=5&experiment_limit=7", got)
}

func TestBootstrapService_Fetch_NoSession(t *testing.T) {
	backend := newFakeBackend(t)
	client := backend.client()

	snap, err := client.Bootstrap.Fetch(context.Background(), BootstrapOptions{})

	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 0, backend.total())
}

func TestBootstrapService_Fetch_OptionalSections(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, http.StatusOK, `{
			"me": {"user_id": "u1"},
			"profile": {"user_id": "u1"},
			"board": {"user_id": "u1"}
		}`)
	})
	client.Sessions.Restore(Session{UserID: "u1", AccessToken: "tok"})

	snap, err := client.Bootstrap.Fetch(context.Background(), BootstrapOptions{})
	require.NoError(t, err)

	assert.NotNil(t, snap.Variables)
	assert.Empty(t, snap.Variables)
	assert.Empty(t, snap.Experiments)
	assert.Empty(t, snap.Catalog)
	assert.Empty(t, snap.Board.Projects)
	assert.NotNil(t, snap.Board.Projects)
	assert.Equal(t, []string{}, snap.ProviderDefaults.FallbackChain)
	assert.Nil(t, snap.Profile.Credits)
	assert.Nil(t, snap.ProviderDefaults.Version)
	_, ok := snap.Profile.Balance()
	assert.False(t, ok)
	assert.Nil(t, snap.Me.ExpiresAt)
}

func TestBootstrapService_Fetch_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{
			name: "missing me",
			body: `{"profile": {}, "board": {}}`,
			path: "me",
		},
		{
			name: "me without user",
			body: `{"me": {}, "profile": {}, "board": {}}`,
			path: "me.user_id",
		},
		{
			name: "missing profile",
			body: `{"me": {"user_id": "u1"}, "board": {}}`,
			path: "profile",
		},
		{
			name: "missing board",
			body: `{"me": {"user_id": "u1"}, "profile": {}}`,
			path: "board",
		},
		{
			name: "project without id",
			body: `{"me": {"user_id": "u1"}, "profile": {}, "board": {"projects": [{"generation_count": 1}]}}`,
			path: "board.projects[0].project_id",
		},
		{
			name: "bad timestamp",
			body: `{"me": {"user_id": "u1"}, "profile": {"next_credit_reset_at": "tomorrow"}, "board": {}}`,
			path: "profile.next_credit_reset_at",
		},
		{
			name: "wrong type",
			body: `{"me": {"user_id": 7}, "profile": {}, "board": {}}`,
			path: "me.user_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeRaw(w, http.StatusOK, tt.body)
			})
			client.Sessions.Restore(Session{UserID: "u1", AccessToken: "tok"})

			_, err := client.Bootstrap.Fetch(context.Background(), BootstrapOptions{})

			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Equal(t, tt.path, decErr.Path)
		})
	}
}

func TestSnapshotHolder(t *testing.T) {
	backend := newFakeBackend(t)
	client := backend.client()
	ctx := context.Background()

	var holder SnapshotHolder
	assert.Nil(t, holder.Load())

	_, err := holder.Refresh(ctx, client.Bootstrap, BootstrapOptions{})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, holder.Load())

	require.NoError(t, client.Sessions.Ensure(ctx, "u1"))
	first, err := holder.Refresh(ctx, client.Bootstrap, BootstrapOptions{})
	require.NoError(t, err)
	assert.Same(t, first, holder.Load())

	backend.set(routeBootstrap, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "down"})
	})
	_, err = holder.Refresh(ctx, client.Bootstrap, BootstrapOptions{})
	require.Error(t, err)
	assert.Same(t, first, holder.Load(), "failed refresh keeps the previous snapshot")

	holder.Clear()
	assert.Nil(t, holder.Load())
}

func TestSnapshotHolder_ConcurrentReaders(t *testing.T) {
	var holder SnapshotHolder
	snaps := []*BootstrapSnapshot{
		{Me: Identity{UserID: "a"}, Board: Board{UserID: "a"}},
		{Me: Identity{UserID: "b"}, Board: Board{UserID: "b"}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				holder.Store(snaps[(i+j)%2])
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if s := holder.Load(); s != nil {
					assert.Equal(t, s.Me.UserID, s.Board.UserID)
				}
			}
		}()
	}
	wg.Wait()
}
