package homeai

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/zippro/homeai/internal/pkg/ulid"
)

// RenderJobsService handles render job submission, status and cancellation.
type RenderJobsService struct {
	client *Client
}

type renderJobCreateWire struct {
	UserID          string                 `json:"user_id"`
	Platform        Platform               `json:"platform"`
	ProjectID       string                 `json:"project_id"`
	ImageURL        string                 `json:"image_url"`
	StyleID         string                 `json:"style_id"`
	Operation       Operation              `json:"operation"`
	Tier            Tier                   `json:"tier"`
	TargetParts     []TargetPart           `json:"target_parts"`
	MaskURL         string                 `json:"mask_url,omitempty"`
	PromptOverrides map[string]interface{} `json:"prompt_overrides,omitempty"`
}

// NewProjectID returns a unique project id for a platform, e.g. "ios-01j9x...".
func NewProjectID(p Platform) string {
	return ulid.Prefixed(string(p))
}

// ProjectCreatedAt returns the creation time embedded in a project id made
// by NewProjectID. ok is false for ids minted elsewhere.
func ProjectCreatedAt(projectID string) (time.Time, bool) {
	suffix := projectID
	if i := strings.LastIndexByte(projectID, '-'); i >= 0 {
		suffix = projectID[i+1:]
	}
	if !ulid.IsValid(suffix) {
		return time.Time{}, false
	}
	t, err := ulid.Time(suffix)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Create submits a render job.
//
// The request is validated first; an invalid request fails with a
// *ValidationError and no network call is made. A missing ProjectID is
// generated and a missing Platform defaults to the client's platform. The
// session is ensured for req.UserID and exactly one POST is issued.
//
// Example:
//
//	job, err := client.RenderJobs.Create(ctx, homeai.RenderJobRequest{
//	    UserID:      "u1",
//	    ImageURL:    "https://example.com/room.jpg",
//	    StyleID:     "modern",
//	    Operation:   homeai.OperationRestyle,
//	    Tier:        homeai.TierPreview,
//	    TargetParts: []homeai.TargetPart{homeai.TargetFullRoom},
//	})
func (s *RenderJobsService) Create(ctx context.Context, req RenderJobRequest) (*RenderJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Platform == "" {
		req.Platform = s.client.platform
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		req.ProjectID = NewProjectID(req.Platform)
	}

	token, err := s.client.Sessions.authorizedFor(ctx, req.UserID, req.Platform)
	if err != nil {
		return nil, err
	}

	body := renderJobCreateWire{
		UserID:          req.UserID,
		Platform:        req.Platform,
		ProjectID:       req.ProjectID,
		ImageURL:        req.ImageURL,
		StyleID:         req.StyleID,
		Operation:       req.Operation,
		Tier:            req.Tier,
		TargetParts:     req.TargetParts,
		MaskURL:         req.MaskURL,
		PromptOverrides: req.PromptOverrides,
	}

	var resp renderJobWire
	if err := s.client.post(ctx, request{path: "/v1/ai/render-jobs", body: body, token: token}, &resp); err != nil {
		return nil, err
	}
	job, err := renderJobFromWire(&resp)
	if err != nil {
		return nil, err
	}
	fillFromRequest(job, &req)

	s.client.logger.Info("render job created",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.String("provider", job.Provider),
		slog.String("operation", string(req.Operation)),
		slog.String("tier", string(req.Tier)),
	)
	return job, nil
}

// fillFromRequest completes echo fields the server left out. Fields the
// server did echo are kept as acknowledged.
func fillFromRequest(job *RenderJob, req *RenderJobRequest) {
	if job.ProjectID == "" {
		job.ProjectID = req.ProjectID
	}
	if job.StyleID == "" {
		job.StyleID = req.StyleID
	}
	if job.Operation == "" {
		job.Operation = req.Operation
	}
	if job.Tier == "" {
		job.Tier = req.Tier
	}
	if job.TargetParts == nil {
		job.TargetParts = append([]TargetPart(nil), req.TargetParts...)
	}
}

// Get fetches the current status of a render job. The current token is
// attached when the client holds one.
func (s *RenderJobsService) Get(ctx context.Context, jobID string) (*RenderJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, NewValidationError("job_id", "is required")
	}

	var resp renderJobWire
	err := s.client.get(ctx, request{
		path:  "/v1/ai/render-jobs/" + url.PathEscape(jobID),
		route: "/v1/ai/render-jobs/{id}",
		token: s.client.Sessions.Token(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return renderJobFromWire(&resp)
}

// Cancel asks the backend to cancel a job. Canceled is false when the
// provider could not stop it; Status reports the job state after the attempt.
func (s *RenderJobsService) Cancel(ctx context.Context, jobID string) (*CancelResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, NewValidationError("job_id", "is required")
	}

	var resp cancelWire
	err := s.client.post(ctx, request{
		path:  "/v1/ai/render-jobs/" + url.PathEscape(jobID) + "/cancel",
		route: "/v1/ai/render-jobs/{id}/cancel",
		token: s.client.Sessions.Token(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return cancelResultFromWire(&resp)
}
