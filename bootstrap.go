package homeai

import (
	"context"
	"net/url"
	"strconv"
	"sync/atomic"
)

const (
	// DefaultBoardLimit is the number of board projects requested by default.
	DefaultBoardLimit = 30
	// DefaultExperimentLimit is the number of experiment assignments requested by default.
	DefaultExperimentLimit = 50
)

// BootstrapService fetches the composite session bootstrap.
type BootstrapService struct {
	client *Client
}

// BootstrapOptions bounds the collections returned by the bootstrap call.
type BootstrapOptions struct {
	BoardLimit      int
	ExperimentLimit int
}

func (o BootstrapOptions) withDefaults() BootstrapOptions {
	if o.BoardLimit <= 0 {
		o.BoardLimit = DefaultBoardLimit
	}
	if o.ExperimentLimit <= 0 {
		o.ExperimentLimit = DefaultExperimentLimit
	}
	return o
}

// Fetch performs one authenticated call returning profile, board, experiment
// assignments, plan catalog, variables and provider defaults.
//
// It requires an established session and fails with ErrNoSession otherwise,
// without a network call. Callers must treat every result as a full replacement
// of previously fetched state.
//
// Example:
//
//	snap, err := client.Bootstrap.Fetch(ctx, homeai.BootstrapOptions{})
func (s *BootstrapService) Fetch(ctx context.Context, opts BootstrapOptions) (*BootstrapSnapshot, error) {
	opts = opts.withDefaults()

	token := s.client.Sessions.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	q := url.Values{}
	q.Set("board_limit", strconv.Itoa(opts.BoardLimit))
	q.Set("experiment_limit", strconv.Itoa(opts.ExperimentLimit))

	var resp bootstrapWire
	err := s.client.get(ctx, request{
		path:  "/v1/session/bootstrap/me",
		query: q,
		token: token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return bootstrapFromWire(&resp)
}

// SnapshotHolder holds the latest bootstrap snapshot for a consuming layer.
// Store replaces the snapshot as a whole; readers never observe a mix of
// two refreshes.
type SnapshotHolder struct {
	p atomic.Pointer[BootstrapSnapshot]
}

// Load returns the latest snapshot, or nil before the first Store.
func (h *SnapshotHolder) Load() *BootstrapSnapshot {
	return h.p.Load()
}

// Store replaces the held snapshot.
func (h *SnapshotHolder) Store(s *BootstrapSnapshot) {
	h.p.Store(s)
}

// Clear discards the held snapshot, e.g. on logout.
func (h *SnapshotHolder) Clear() {
	h.p.Store(nil)
}

// Refresh fetches a new snapshot and stores it. On error the previous
// snapshot is kept.
func (h *SnapshotHolder) Refresh(ctx context.Context, svc *BootstrapService, opts BootstrapOptions) (*BootstrapSnapshot, error) {
	snap, err := svc.Fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	h.Store(snap)
	return snap, nil
}
