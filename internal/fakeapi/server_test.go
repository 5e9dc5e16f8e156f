package fakeapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testAPI{t: t, srv: srv, ts: ts}
}

// do sends a request and decodes the JSON response into a generic map or slice.
func (a *testAPI) do(method, path, token string, body interface{}) (int, interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.ts.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out interface{}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (a *testAPI) login(user string) string {
	a.t.Helper()
	status, body := a.do(http.MethodPost, "/v1/auth/login-dev", "", map[string]interface{}{"user_id": user, "platform": "web"})
	require.Equal(a.t, http.StatusOK, status)
	return body.(map[string]interface{})["access_token"].(string)
}

func (a *testAPI) createJob(token string, body map[string]interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	status, out := a.do(http.MethodPost, "/v1/ai/render-jobs", token, body)
	return status, out.(map[string]interface{})
}

func jobBodyFor(user, tier string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      user,
		"platform":     "web",
		"project_id":   "proj-1",
		"image_url":    "https://img.test/room.jpg",
		"style_id":     "japandi",
		"operation":    "restyle",
		"tier":         tier,
		"target_parts": []string{"walls"},
	}
}

func detail(body interface{}) interface{} {
	return body.(map[string]interface{})["detail"]
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, body := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body.(map[string]interface{})["status"])
}

func TestLoginAndMe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := newTestAPI(t, Options{Now: func() time.Time { return now }})

	status, body := api.do(http.MethodPost, "/v1/auth/login-dev", "", map[string]interface{}{
		"user_id": "u1", "platform": "ios", "ttl_hours": 2,
	})
	require.Equal(t, http.StatusOK, status)
	login := body.(map[string]interface{})
	assert.Equal(t, "bearer", login["token_type"])
	assert.Equal(t, "u1", login["user_id"])
	assert.Equal(t, "2026-03-01T14:00:00Z", login["expires_at"])

	status, body = api.do(http.MethodGet, "/v1/auth/me", login["access_token"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	me := body.(map[string]interface{})
	assert.Equal(t, "u1", me["user_id"])
	assert.Equal(t, "ios", me["platform"])
	assert.Equal(t, "2026-03-01T14:00:00Z", me["expires_at"])
}

func TestLogin_Validation(t *testing.T) {
	api := newTestAPI(t, Options{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing user", body: map[string]interface{}{"user_id": "  "}},
		{name: "ttl too small", body: map[string]interface{}{"user_id": "u1", "ttl_hours": 0}},
		{name: "ttl too large", body: map[string]interface{}{"user_id": "u1", "ttl_hours": 2161}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := api.do(http.MethodPost, "/v1/auth/login-dev", "", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, status)
		})
	}
}

func TestMe_Unauthorized(t *testing.T) {
	api := newTestAPI(t, Options{})

	status, body := api.do(http.MethodGet, "/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing_or_invalid_token", detail(body))

	status, body = api.do(http.MethodGet, "/v1/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_or_expired_token", detail(body))

	other := New(Options{Secret: []byte("other-secret")})
	token, _, err := other.issue("u1", "", time.Hour)
	require.NoError(t, err)
	status, _ = api.do(http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "foreign signature")
}

func TestMe_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := newTestAPI(t, Options{Now: func() time.Time { return now }})
	token := api.login("u1")

	now = now.Add(31 * 24 * time.Hour)
	status, body := api.do(http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_or_expired_token", detail(body))
}

func TestLogout_RevokesToken(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")
	other := api.login("u1")

	status, body := api.do(http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body.(map[string]interface{})["revoked"])

	status, _ = api.do(http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodGet, "/v1/auth/me", other, nil)
	assert.Equal(t, http.StatusOK, status, "only the presented token is revoked")
}

func TestCreateJob_Progression(t *testing.T) {
	api := newTestAPI(t, Options{StepsToComplete: 2})
	token := api.login("u1")

	status, job := api.createJob(token, jobBodyFor("u1", "preview"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "queued", job["status"])
	assert.Equal(t, "proj-1", job["project_id"])
	assert.Equal(t, "japandi", job["style_id"])
	assert.Equal(t, "restyle", job["operation"])
	assert.Equal(t, "preview", job["tier"])
	assert.Equal(t, []interface{}{"walls"}, job["target_parts"])
	assert.Equal(t, "mock", job["provider"])
	assert.Nil(t, job["output_url"])

	id := job["id"].(string)
	var statuses []string
	for i := 0; i < 3; i++ {
		status, body := api.do(http.MethodGet, "/v1/ai/render-jobs/"+id, "", nil)
		require.Equal(t, http.StatusOK, status)
		statuses = append(statuses, body.(map[string]interface{})["status"].(string))
	}
	assert.Equal(t, []string{"in_progress", "completed", "completed"}, statuses)
	assert.Equal(t, 3, api.srv.Hits("GET /v1/ai/render-jobs/{jobID}"))

	_, body := api.do(http.MethodGet, "/v1/ai/render-jobs/"+id, "", nil)
	assert.Contains(t, body.(map[string]interface{})["output_url"], id)
}

func TestCreateJob_ImmediateCompletion(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	status, job := api.createJob(token, jobBodyFor("u1", "preview"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", job["status"])
	assert.NotNil(t, job["output_url"])
}

func TestCreateJob_Failure(t *testing.T) {
	api := newTestAPI(t, Options{FailStyle: "japandi", StepsToComplete: 1})
	token := api.login("u1")

	_, job := api.createJob(token, jobBodyFor("u1", "preview"))
	_, body := api.do(http.MethodGet, "/v1/ai/render-jobs/"+job["id"].(string), "", nil)
	got := body.(map[string]interface{})
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "provider_error", got["error_code"])

	api.srv.mu.Lock()
	assert.Equal(t, 3, api.srv.credits["u1"], "failed jobs are refunded")
	api.srv.mu.Unlock()
}

func TestCreateJob_Auth(t *testing.T) {
	api := newTestAPI(t, Options{})

	status, body := api.createJob("", jobBodyFor("u1", "preview"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing_or_invalid_token", body["detail"])

	token := api.login("u2")
	status, body = api.createJob(token, jobBodyFor("u1", "preview"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden_user_scope", body["detail"])
}

func TestCreateJob_Validation(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	tests := []struct {
		field string
		value interface{}
	}{
		{field: "image_url", value: ""},
		{field: "style_id", value: ""},
		{field: "operation", value: "explode"},
		{field: "tier", value: "ultra"},
		{field: "target_parts", value: []string{}},
		{field: "target_parts", value: []string{"ceiling"}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			body := jobBodyFor("u1", "preview")
			body[tt.field] = tt.value
			status, out := api.createJob(token, body)
			assert.Equal(t, http.StatusUnprocessableEntity, status)
			loc := out["detail"].([]interface{})[0].(map[string]interface{})["loc"]
			assert.Equal(t, []interface{}{"body", tt.field}, loc)
		})
	}
}

func TestCreateJob_Credits(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	api.srv.SetCredits("u1", 1)
	status, body := api.createJob(token, jobBodyFor("u1", "final"))
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Contains(t, body["detail"], "Insufficient credits")

	status, _ = api.createJob(token, jobBodyFor("u1", "preview"))
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.createJob(token, jobBodyFor("u1", "preview"))
	assert.Equal(t, http.StatusPaymentRequired, status)
}

func TestCreateJob_PreviewBeforeFinal(t *testing.T) {
	api := newTestAPI(t, Options{RequirePreviewBeforeFinal: true})
	token := api.login("u1")
	api.srv.SetCredits("u1", 10)

	status, body := api.createJob(token, jobBodyFor("u1", "final"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "preview_required_before_final", body["detail"])

	status, _ = api.createJob(token, jobBodyFor("u1", "preview"))
	require.Equal(t, http.StatusOK, status)

	status, _ = api.createJob(token, jobBodyFor("u1", "final"))
	assert.Equal(t, http.StatusOK, status)
}

func TestJob_NotFound(t *testing.T) {
	api := newTestAPI(t, Options{})

	status, body := api.do(http.MethodGet, "/v1/ai/render-jobs/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "job_not_found", detail(body))

	status, body = api.do(http.MethodPost, "/v1/ai/render-jobs/nope/cancel", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "job_not_found", detail(body))
}

func TestCancelJob(t *testing.T) {
	api := newTestAPI(t, Options{StepsToComplete: 5})
	token := api.login("u1")

	_, job := api.createJob(token, jobBodyFor("u1", "preview"))
	id := job["id"].(string)

	status, body := api.do(http.MethodPost, "/v1/ai/render-jobs/"+id+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, status)
	got := body.(map[string]interface{})
	assert.Equal(t, id, got["id"])
	assert.Equal(t, true, got["canceled"])
	assert.Equal(t, "canceled", got["status"])

	_, body = api.do(http.MethodPost, "/v1/ai/render-jobs/"+id+"/cancel", "", nil)
	assert.Equal(t, false, body.(map[string]interface{})["canceled"], "already terminal")

	_, body = api.do(http.MethodGet, "/v1/ai/render-jobs/"+id, "", nil)
	assert.Equal(t, "canceled", body.(map[string]interface{})["status"])

	api.srv.mu.Lock()
	assert.Equal(t, 3, api.srv.credits["u1"], "canceled jobs are refunded")
	api.srv.mu.Unlock()
}

func TestBootstrap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := newTestAPI(t, Options{Now: func() time.Time { return now }, RequirePreviewBeforeFinal: true})
	token := api.login("u1")

	for _, project := range []string{"proj-a", "proj-b"} {
		body := jobBodyFor("u1", "preview")
		body["project_id"] = project
		status, _ := api.createJob(token, body)
		require.Equal(t, http.StatusOK, status)
		now = now.Add(time.Minute)
	}

	status, out := api.do(http.MethodGet, "/v1/session/bootstrap/me?board_limit=1&experiment_limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)
	snap := out.(map[string]interface{})

	assert.Equal(t, "u1", snap["me"].(map[string]interface{})["user_id"])

	profile := snap["profile"].(map[string]interface{})
	assert.Equal(t, float64(1), profile["credits"].(map[string]interface{})["balance"])
	assert.Equal(t, "free", profile["effective_plan"].(map[string]interface{})["plan_id"])
	assert.Equal(t, "2026-03-02T00:00:00Z", profile["next_credit_reset_at"])

	projects := snap["board"].(map[string]interface{})["projects"].([]interface{})
	require.Len(t, projects, 1)
	assert.Equal(t, "proj-b", projects[0].(map[string]interface{})["project_id"], "most recent first")
	assert.Equal(t, float64(1), projects[0].(map[string]interface{})["generation_count"])

	assignments := snap["experiments"].(map[string]interface{})["assignments"].([]interface{})
	assert.Len(t, assignments, 1)

	assert.Len(t, snap["catalog"], 2)
	assert.Equal(t, true, snap["variables"].(map[string]interface{})["preview_before_final_required"])
	assert.Equal(t, "mock", snap["provider_defaults"].(map[string]interface{})["default_provider"])
}

func TestBootstrap_Limits(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	for _, q := range []string{"board_limit=0", "board_limit=201", "experiment_limit=abc"} {
		status, _ := api.do(http.MethodGet, "/v1/session/bootstrap/me?"+q, token, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status, q)
	}
}

func TestAccountReads(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := newTestAPI(t, Options{Now: func() time.Time { return now }})
	token := api.login("u1")
	api.srv.SetCredits("u1", 9)

	status, _ := api.createJob(token, jobBodyFor("u1", "preview"))
	require.Equal(t, http.StatusOK, status)

	status, out := api.do(http.MethodGet, "/v1/projects/board/u1?limit=5", token, nil)
	require.Equal(t, http.StatusOK, status)
	projects := out.(map[string]interface{})["projects"].([]interface{})
	require.Len(t, projects, 1)
	assert.Equal(t, "proj-1", projects[0].(map[string]interface{})["project_id"])

	status, out = api.do(http.MethodGet, "/v1/credits/balance/u1", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(8), out.(map[string]interface{})["balance"])

	status, out = api.do(http.MethodGet, "/v1/profile/overview/u1", token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := out.(map[string]interface{})
	assert.Equal(t, float64(8), profile["credits"].(map[string]interface{})["balance"])
	assert.Equal(t, "2026-03-02T00:00:00Z", profile["next_credit_reset_at"])

	status, out = api.do(http.MethodGet, "/v1/experiments/active/u1?limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out.(map[string]interface{})["assignments"], 1)

	status, out = api.do(http.MethodGet, "/v1/subscriptions/entitlements/u2", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u2", out.(map[string]interface{})["user_id"])
	assert.Equal(t, "free", out.(map[string]interface{})["plan_id"])

	assert.Equal(t, 1, api.srv.Hits("GET /v1/credits/balance/{userID}"))
}

func TestAccountReads_OtherUser(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	for _, path := range []string{
		"/v1/projects/board/u2",
		"/v1/credits/balance/u2",
		"/v1/profile/overview/u2",
		"/v1/experiments/active/u2",
	} {
		status, body := api.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, status, path)
		assert.Equal(t, "forbidden_user_scope", detail(body), path)
	}

	status, _ := api.do(http.MethodGet, "/v1/credits/balance/u1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodGet, "/v1/projects/board/u1?limit=101", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestCheckout(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.login("u1")

	body := map[string]interface{}{
		"user_id":     "u1",
		"plan_id":     "pro",
		"success_url": "https://app.test/ok",
		"cancel_url":  "https://app.test/no",
	}
	status, out := api.do(http.MethodPost, "/v1/subscriptions/web/checkout-session", token, body)
	require.Equal(t, http.StatusOK, status)
	sess := out.(map[string]interface{})
	assert.True(t, strings.HasPrefix(sess["session_id"].(string), "wcs_"))
	assert.Equal(t, "stripe", sess["provider"])

	u, err := url.Parse(sess["checkout_url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "pro", u.Query().Get("plan_id"))
	assert.Equal(t, "pro_monthly_web", u.Query().Get("product_id"))
	assert.Equal(t, "u1", u.Query().Get("user_id"))

	body["plan_id"] = "free"
	status, _ = api.do(http.MethodPost, "/v1/subscriptions/web/checkout-session", token, body)
	assert.Equal(t, http.StatusBadRequest, status, "free has no web product")

	body["plan_id"] = "platinum"
	status, _ = api.do(http.MethodPost, "/v1/subscriptions/web/checkout-session", token, body)
	assert.Equal(t, http.StatusNotFound, status)

	body["user_id"] = "u2"
	status, out = api.do(http.MethodPost, "/v1/subscriptions/web/checkout-session", token, body)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden_user_scope", detail(out))
}

func TestAssignments_Stable(t *testing.T) {
	now := time.Now()
	assert.Equal(t, assignments("u1", now), assignments("u1", now))
}

func TestDiscover(t *testing.T) {
	api := newTestAPI(t, Options{})

	_, body := api.do(http.MethodGet, "/v1/discover/feed", "", nil)
	feed := body.(map[string]interface{})
	assert.Equal(t, []interface{}{"Home", "Garden", "Exterior Design"}, feed["tabs"])
	assert.Len(t, feed["sections"], 4)

	_, body = api.do(http.MethodGet, "/v1/discover/feed?tab=garden", "", nil)
	sections := body.(map[string]interface{})["sections"].([]interface{})
	require.Len(t, sections, 1, "empty sections are dropped")
	assert.Equal(t, "garden", sections[0].(map[string]interface{})["key"])

	_, body = api.do(http.MethodGet, "/v1/discover/feed?tab=Rooftop", "", nil)
	assert.Empty(t, body.(map[string]interface{})["sections"])
}

func TestCatalog(t *testing.T) {
	api := newTestAPI(t, Options{})

	status, body := api.do(http.MethodGet, "/v1/subscriptions/catalog", "", nil)
	require.Equal(t, http.StatusOK, status)
	plans := body.([]interface{})
	require.Len(t, plans, 2)

	pro := plans[1].(map[string]interface{})
	assert.Equal(t, "pro", pro["plan_id"])
	assert.Equal(t, 14.99, pro["monthly_price_usd"])
	assert.Equal(t, "pro_monthly_web", pro["web_product_id"])
}

func TestEvents(t *testing.T) {
	api := newTestAPI(t, Options{})

	status, _ := api.do(http.MethodPost, "/v1/analytics/events", "", map[string]interface{}{"event_name": "render_started", "user_id": "u1"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodPost, "/v1/analytics/events", "", map[string]interface{}{"user_id": "u1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	events := api.srv.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "render_started", events[0]["event_name"])
}

func TestCORS_Preflight(t *testing.T) {
	api := newTestAPI(t, Options{})

	req, err := http.NewRequest(http.MethodOptions, api.ts.URL+"/v1/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
