// Package fakeapi is an in-memory stand-in for the HomeAI backend.
//
// It serves the endpoints the client uses with the same wire shapes and error
// details as the real API. Render jobs advance one step per status fetch, so
// polling flows can be exercised deterministically. It backs the client's
// integration tests and the `homeai dev-server` command.
package fakeapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures a fake server.
type Options struct {
	// Secret signs access tokens. Defaults to a fixed development secret.
	Secret []byte
	// StepsToComplete is the number of status fetches a job reports as
	// in_progress before it completes. Zero completes jobs at creation.
	StepsToComplete int
	// FailStyle makes jobs for this style end in failed.
	FailStyle string
	// RequirePreviewBeforeFinal rejects a final render of a project and style
	// that has no completed preview.
	RequirePreviewBeforeFinal bool
	// Logger receives one line per request. Defaults to discarding.
	Logger *slog.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	revoked   map[string]struct{}
	jobs      map[string]*job
	credits   map[string]int
	projects  map[string]map[string]*project
	previewed map[string]bool
	events    []map[string]interface{}
	hits      map[string]int
}

// New creates a fake server.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("homeai-dev-secret")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		opts:      opts,
		logger:    logger,
		revoked:   map[string]struct{}{},
		jobs:      map[string]*job{},
		credits:   map[string]int{},
		projects:  map[string]map[string]*project{},
		previewed: map[string]bool{},
		hits:      map[string]int{},
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login-dev", s.handleLogin)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/discover/feed", s.handleDiscover)
		r.Get("/subscriptions/catalog", s.handleCatalog)
		r.Get("/subscriptions/entitlements/{userID}", s.handleEntitlement)
		r.Post("/analytics/events", s.handleEvent)

		r.Get("/ai/render-jobs/{jobID}", s.handleGetJob)
		r.Post("/ai/render-jobs/{jobID}/cancel", s.handleCancelJob)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/ai/render-jobs", s.handleCreateJob)
			r.Get("/session/bootstrap/me", s.handleBootstrap)
			r.Get("/projects/board/{userID}", s.handleBoard)
			r.Get("/credits/balance/{userID}", s.handleCredits)
			r.Get("/profile/overview/{userID}", s.handleProfile)
			r.Get("/experiments/active/{userID}", s.handleActiveExperiments)
			r.Post("/subscriptions/web/checkout-session", s.handleCheckout)
		})
	})

	return r
}

// logging logs each request and counts hits per route pattern.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.mu.Lock()
		s.hits[r.Method+" "+route]++
		s.mu.Unlock()

		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

// Hits returns how many requests matched a route, e.g.
// "GET /v1/ai/render-jobs/{jobID}".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Events returns a copy of the analytics events received so far.
func (s *Server) Events() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, len(s.events))
	copy(out, s.events)
	return out
}

// SetCredits overrides a user's credit balance.
func (s *Server) SetCredits(userID string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[userID] = balance
}

func (s *Server) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid_json")
		return
	}
	if name, _ := ev["event_name"].(string); name == "" {
		writeValidation(w, "event_name", "field required")
		return
	}

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": ...} error body the real API uses.
func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	writeJSON(w, status, map[string]interface{}{"detail": detail})
}

// writeValidation writes a request validation failure for one body field.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeDetail(w, http.StatusUnprocessableEntity, []map[string]interface{}{
		{"loc": []string{"body", field}, "msg": msg, "type": "value_error"},
	})
}
