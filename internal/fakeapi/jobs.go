package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	provider      = "mock"
	providerModel = "mock-v1"
)

var (
	operations  = map[string]bool{"restyle": true, "replace": true, "remove": true, "repaint": true}
	tiers       = map[string]bool{"preview": true, "final": true}
	targetParts = map[string]bool{"full_room": true, "walls": true, "floor": true, "furniture": true, "decor": true}
	costUSD     = map[string]float64{"preview": 0.01, "final": 0.04}
)

type job struct {
	ID          string
	UserID      string
	ProjectID   string
	StyleID     string
	Operation   string
	Tier        string
	TargetParts []string
	ImageURL    string
	Status      string
	OutputURL   *string
	ErrorCode   *string
	Cost        float64
	Credits     int
	UpdatedAt   time.Time
	fetches     int
}

func (j *job) terminal() bool {
	return j.Status == "completed" || j.Status == "failed" || j.Status == "canceled"
}

type project struct {
	ProjectID       string
	CoverImageURL   string
	GenerationCount int
	LastJobID       string
	LastStyleID     string
	LastStatus      string
	LastOutputURL   *string
	LastUpdatedAt   time.Time
}

type createJobRequest struct {
	UserID          string                 `json:"user_id"`
	Platform        string                 `json:"platform"`
	ProjectID       string                 `json:"project_id"`
	ImageURL        string                 `json:"image_url"`
	StyleID         string                 `json:"style_id"`
	Operation       string                 `json:"operation"`
	Tier            string                 `json:"tier"`
	TargetParts     []string               `json:"target_parts"`
	MaskURL         string                 `json:"mask_url"`
	PromptOverrides map[string]interface{} `json:"prompt_overrides"`
}

func (req *createJobRequest) validate() (field, msg string) {
	switch {
	case strings.TrimSpace(req.ImageURL) == "":
		return "image_url", "field required"
	case strings.TrimSpace(req.StyleID) == "":
		return "style_id", "field required"
	case !operations[req.Operation]:
		return "operation", "unexpected value"
	case !tiers[req.Tier]:
		return "tier", "unexpected value"
	case len(req.TargetParts) == 0:
		return "target_parts", "ensure this value has at least 1 items"
	}
	for _, p := range req.TargetParts {
		if !targetParts[p] {
			return "target_parts", fmt.Sprintf("unexpected value %q", p)
		}
	}
	return "", ""
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid_json")
		return
	}
	if field, msg := req.validate(); field != "" {
		writeValidation(w, field, msg)
		return
	}
	if req.UserID == "" {
		req.UserID = caller.Subject
	}
	if req.UserID != caller.Subject {
		writeDetail(w, http.StatusForbidden, "forbidden_user_scope")
		return
	}
	if req.ProjectID == "" {
		req.ProjectID = "proj-" + uuid.NewString()
	}

	now := s.now()
	plan := freePlan
	cost := plan.costFor(req.Tier)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.RequirePreviewBeforeFinal && req.Tier == "final" && !s.previewed[previewKey(req.UserID, req.ProjectID, req.StyleID)] {
		writeDetail(w, http.StatusConflict, "preview_required_before_final")
		return
	}
	balance := s.balanceLocked(req.UserID)
	if balance < cost {
		writeDetail(w, http.StatusPaymentRequired,
			fmt.Sprintf("Insufficient credits: %s render needs %d, balance is %d.", req.Tier, cost, balance))
		return
	}
	s.credits[req.UserID] = balance - cost

	j := &job{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		StyleID:     req.StyleID,
		Operation:   req.Operation,
		Tier:        req.Tier,
		TargetParts: req.TargetParts,
		ImageURL:    req.ImageURL,
		Status:      "queued",
		Cost:        costUSD[req.Tier],
		Credits:     cost,
		UpdatedAt:   now,
	}
	if s.opts.StepsToComplete <= 0 {
		s.finishLocked(j, now)
	}
	s.jobs[j.ID] = j
	s.touchProjectLocked(j, true)

	body := jobBody(j)
	body["project_id"] = j.ProjectID
	body["style_id"] = j.StyleID
	body["operation"] = j.Operation
	body["tier"] = j.Tier
	body["target_parts"] = j.TargetParts
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "job_not_found")
		return
	}
	if !j.terminal() {
		s.advanceLocked(j)
	}
	writeJSON(w, http.StatusOK, jobBody(j))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "job_not_found")
		return
	}
	canceled := false
	if !j.terminal() {
		j.Status = "canceled"
		j.UpdatedAt = s.now()
		s.credits[j.UserID] += j.Credits
		s.touchProjectLocked(j, false)
		canceled = true
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       j.ID,
		"canceled": canceled,
		"status":   j.Status,
	})
}

// advanceLocked moves a job one step along queued, in_progress, then a
// terminal status once StepsToComplete fetches have been served.
func (s *Server) advanceLocked(j *job) {
	j.fetches++
	now := s.now()
	if j.fetches >= s.opts.StepsToComplete {
		s.finishLocked(j, now)
	} else {
		j.Status = "in_progress"
		j.UpdatedAt = now
	}
	s.touchProjectLocked(j, false)
}

func (s *Server) finishLocked(j *job, now time.Time) {
	j.UpdatedAt = now
	if s.opts.FailStyle != "" && j.StyleID == s.opts.FailStyle {
		j.Status = "failed"
		code := "provider_error"
		j.ErrorCode = &code
		s.credits[j.UserID] += j.Credits
		return
	}
	j.Status = "completed"
	out := fmt.Sprintf("https://cdn.homeai.test/renders/%s.png", j.ID)
	j.OutputURL = &out
	if j.Tier == "preview" {
		s.previewed[previewKey(j.UserID, j.ProjectID, j.StyleID)] = true
	}
}

func (s *Server) touchProjectLocked(j *job, created bool) {
	projects, ok := s.projects[j.UserID]
	if !ok {
		projects = map[string]*project{}
		s.projects[j.UserID] = projects
	}
	p, ok := projects[j.ProjectID]
	if !ok {
		p = &project{ProjectID: j.ProjectID, CoverImageURL: j.ImageURL}
		projects[j.ProjectID] = p
	}
	if created {
		p.GenerationCount++
	}
	p.LastJobID = j.ID
	p.LastStyleID = j.StyleID
	p.LastStatus = j.Status
	p.LastOutputURL = j.OutputURL
	p.LastUpdatedAt = j.UpdatedAt
}

func (s *Server) balanceLocked(userID string) int {
	balance, ok := s.credits[userID]
	if !ok {
		balance = freePlan.DailyCredits
		s.credits[userID] = balance
	}
	return balance
}

func previewKey(userID, projectID, styleID string) string {
	return userID + "|" + projectID + "|" + styleID
}

func jobBody(j *job) map[string]interface{} {
	return map[string]interface{}{
		"id":                 j.ID,
		"status":             j.Status,
		"provider":           provider,
		"provider_model":     providerModel,
		"output_url":         j.OutputURL,
		"estimated_cost_usd": j.Cost,
		"updated_at":         j.UpdatedAt,
		"error_code":         j.ErrorCode,
	}
}
