// Package homeai is the Go client for the HomeAI rendering backend.
//
// It owns the session lifecycle (login exchange, identity echo, silent
// renewal), the render-job submission and polling state machine, and the
// composite session bootstrap fetch.
package homeai

import (
	"time"
)

// Platform identifies the client platform a session was minted for.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Operation is the kind of image transformation requested.
type Operation string

const (
	OperationRestyle Operation = "restyle"
	OperationReplace Operation = "replace"
	OperationRemove  Operation = "remove"
	OperationRepaint Operation = "repaint"
)

// Tier is the quality and cost level of a render.
type Tier string

const (
	TierPreview Tier = "preview"
	TierFinal   Tier = "final"
)

// TargetPart is the room region a render operation applies to.
type TargetPart string

const (
	TargetFullRoom  TargetPart = "full_room"
	TargetWalls     TargetPart = "walls"
	TargetFloor     TargetPart = "floor"
	TargetFurniture TargetPart = "furniture"
	TargetDecor     TargetPart = "decor"
)

// JobStatus is the backend-reported state of a render job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// Valid reports whether s is one of the five known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobInProgress, JobCompleted, JobFailed, JobCanceled:
		return true
	}
	return false
}

// Session is the client's view of its current authentication.
// ExpiresAt is advisory; the server enforces expiry.
type Session struct {
	UserID      string    `json:"user_id"`
	Platform    Platform  `json:"platform"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the session holds a token.
func (s Session) Valid() bool {
	return s.AccessToken != ""
}

// Identity is the identity echo returned by GET /v1/auth/me.
type Identity struct {
	UserID    string     `json:"user_id"`
	Platform  *string    `json:"platform,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RenderJobRequest is a render submission.
type RenderJobRequest struct {
	UserID          string                 `json:"user_id" validate:"required"`
	Platform        Platform               `json:"platform,omitempty"`
	ProjectID       string                 `json:"project_id,omitempty"`
	ImageURL        string                 `json:"image_url" validate:"required,url"`
	StyleID         string                 `json:"style_id" validate:"required"`
	Operation       Operation              `json:"operation" validate:"required,oneof=restyle replace remove repaint"`
	Tier            Tier                   `json:"tier" validate:"required,oneof=preview final"`
	TargetParts     []TargetPart           `json:"target_parts" validate:"min=1,unique,dive,oneof=full_room walls floor furniture decor"`
	MaskURL         string                 `json:"mask_url,omitempty" validate:"omitempty,url"`
	PromptOverrides map[string]interface{} `json:"prompt_overrides,omitempty"`
}

// RenderJob is the latest known snapshot of a render job.
type RenderJob struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	Provider      string    `json:"provider"`
	ProviderModel string    `json:"provider_model"`
	// OutputURL is set only once the job has completed.
	OutputURL *string `json:"output_url"`
	// ErrorCode is set only when the job has failed.
	ErrorCode        *string    `json:"error_code"`
	EstimatedCostUSD *float64   `json:"estimated_cost_usd,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`

	// Echoed request fields. Empty when the server does not echo them and
	// the job was fetched rather than created.
	ProjectID   string       `json:"project_id,omitempty"`
	StyleID     string       `json:"style_id,omitempty"`
	Operation   Operation    `json:"operation,omitempty"`
	Tier        Tier         `json:"tier,omitempty"`
	TargetParts []TargetPart `json:"target_parts,omitempty"`
}

// CancelResult is the response of a cancel request.
type CancelResult struct {
	ID       string    `json:"id"`
	Canceled bool      `json:"canceled"`
	Status   JobStatus `json:"status"`
}

// CreditBalance is a user's credit balance.
type CreditBalance struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

// Entitlement is a user's subscription entitlement.
type Entitlement struct {
	UserID    string     `json:"user_id"`
	PlanID    string     `json:"plan_id"`
	Status    string     `json:"status"`
	Source    string     `json:"source"`
	ProductID *string    `json:"product_id,omitempty"`
	RenewsAt  *time.Time `json:"renews_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Plan is a subscription plan from the catalog. Nil numeric and flag
// fields were absent from the response.
type Plan struct {
	PlanID             string   `json:"plan_id"`
	DisplayName        string   `json:"display_name"`
	IsActive           *bool    `json:"is_active,omitempty"`
	DailyCredits       *int     `json:"daily_credits,omitempty"`
	PreviewCostCredits *int     `json:"preview_cost_credits,omitempty"`
	FinalCostCredits   *int     `json:"final_cost_credits,omitempty"`
	MonthlyPriceUSD    *float64 `json:"monthly_price_usd,omitempty"`
	IOSProductID       *string  `json:"ios_product_id,omitempty"`
	AndroidProductID   *string  `json:"android_product_id,omitempty"`
	WebProductID       *string  `json:"web_product_id,omitempty"`
	Features           []string `json:"features"`
}

// ProfileOverview aggregates credits, entitlement and the effective plan.
// A nil section was not part of the response.
type ProfileOverview struct {
	UserID            string         `json:"user_id"`
	Credits           *CreditBalance `json:"credits,omitempty"`
	Entitlement       *Entitlement   `json:"entitlement,omitempty"`
	EffectivePlan     *Plan          `json:"effective_plan,omitempty"`
	NextCreditResetAt *time.Time     `json:"next_credit_reset_at,omitempty"`
}

// Balance returns the credit balance and whether the profile carried one.
func (p ProfileOverview) Balance() (int, bool) {
	if p.Credits == nil {
		return 0, false
	}
	return p.Credits.Balance, true
}

// BoardProject summarizes one project on the user's board.
type BoardProject struct {
	ProjectID       string     `json:"project_id"`
	CoverImageURL   *string    `json:"cover_image_url,omitempty"`
	GenerationCount *int       `json:"generation_count,omitempty"`
	LastJobID       *string    `json:"last_job_id,omitempty"`
	LastStyleID     *string    `json:"last_style_id,omitempty"`
	LastStatus      *JobStatus `json:"last_status,omitempty"`
	LastOutputURL   *string    `json:"last_output_url,omitempty"`
	LastUpdatedAt   *time.Time `json:"last_updated_at,omitempty"`
}

// Board is the user's project board.
type Board struct {
	UserID   string         `json:"user_id"`
	Projects []BoardProject `json:"projects"`
}

// ExperimentAssignment is one active experiment variant for the user.
type ExperimentAssignment struct {
	ExperimentID string     `json:"experiment_id"`
	UserID       string     `json:"user_id"`
	VariantID    string     `json:"variant_id"`
	FromCache    bool       `json:"from_cache"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
}

// ProviderDefaults is the backend's provider routing configuration.
type ProviderDefaults struct {
	DefaultProvider string   `json:"default_provider"`
	FallbackChain   []string `json:"fallback_chain"`
	Version         *int     `json:"version,omitempty"`
}

// BootstrapSnapshot is the composite read model for initial screen paint.
// It is never partially updated; consumers replace it as a whole.
type BootstrapSnapshot struct {
	Me               Identity               `json:"me"`
	Profile          ProfileOverview        `json:"profile"`
	Board            Board                  `json:"board"`
	Experiments      []ExperimentAssignment `json:"experiments"`
	Catalog          []Plan                 `json:"catalog"`
	Variables        map[string]interface{} `json:"variables"`
	ProviderDefaults ProviderDefaults       `json:"provider_defaults"`
}

// Variant returns the assigned variant for an experiment.
func (s *BootstrapSnapshot) Variant(experimentID string) (string, bool) {
	for _, a := range s.Experiments {
		if a.ExperimentID == experimentID {
			return a.VariantID, true
		}
	}
	return "", false
}

// DiscoverItem is a before/after showcase entry.
type DiscoverItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Category       string `json:"category"`
	BeforeImageURL string `json:"before_image_url"`
	AfterImageURL  string `json:"after_image_url"`
}

// DiscoverSection groups discover items under a heading.
type DiscoverSection struct {
	Key   string         `json:"key"`
	Title string         `json:"title"`
	Items []DiscoverItem `json:"items"`
}

// DiscoverFeed is the discover tab content.
type DiscoverFeed struct {
	Tabs     []string          `json:"tabs"`
	Sections []DiscoverSection `json:"sections"`
}
