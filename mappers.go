package homeai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// number accepts JSON integers, floats and numeric strings.
type number float64

var numberType = reflect.TypeOf(float64(0))

// UnmarshalJSON implements json.Unmarshaler. Failures are reported as
// *json.UnmarshalTypeError so encoding/json records the field path.
func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := b
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return &json.UnmarshalTypeError{Value: "string " + string(raw), Type: numberType}
		}
		b = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return &json.UnmarshalTypeError{Value: jsonKind(raw) + " " + string(raw), Type: numberType}
	}
	*n = number(f)
	return nil
}

func jsonKind(b []byte) string {
	switch {
	case len(b) == 0:
		return "value"
	case b[0] == '"':
		return "string"
	case b[0] == '{':
		return "object"
	case b[0] == '[':
		return "array"
	case b[0] == 't' || b[0] == 'f':
		return "bool"
	}
	return "number"
}

func (n number) int() int {
	return int(math.Round(float64(n)))
}

func intPtr(n *number) *int {
	if n == nil {
		return nil
	}
	v := n.int()
	return &v
}

func floatPtr(n *number) *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

func strOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseTime accepts RFC 3339 and offset-less ISO 8601 (assumed UTC).
func parseTime(path string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, *s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", *s, time.UTC)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("invalid timestamp %q", *s)}
	}
	return &t, nil
}

// Wire shapes. Every optional field is a pointer so absence and null stay
// distinguishable from zero values.

type identityWire struct {
	UserID    *string `json:"user_id"`
	Platform  *string `json:"platform"`
	ExpiresAt *string `json:"expires_at"`
}

type loginWire struct {
	AccessToken *string `json:"access_token"`
	TokenType   *string `json:"token_type"`
	UserID      *string `json:"user_id"`
	ExpiresAt   *string `json:"expires_at"`
}

type renderJobWire struct {
	ID               *string  `json:"id"`
	Status           *string  `json:"status"`
	Provider         *string  `json:"provider"`
	ProviderModel    *string  `json:"provider_model"`
	OutputURL        *string  `json:"output_url"`
	ErrorCode        *string  `json:"error_code"`
	EstimatedCostUSD *number  `json:"estimated_cost_usd"`
	UpdatedAt        *string  `json:"updated_at"`
	ProjectID        *string  `json:"project_id"`
	StyleID          *string  `json:"style_id"`
	Operation        *string  `json:"operation"`
	Tier             *string  `json:"tier"`
	TargetParts      []string `json:"target_parts"`
}

type cancelWire struct {
	ID       *string `json:"id"`
	Canceled bool    `json:"canceled"`
	Status   *string `json:"status"`
}

type creditsWire struct {
	UserID  *string `json:"user_id"`
	Balance *number `json:"balance"`
}

type entitlementWire struct {
	UserID    *string `json:"user_id"`
	PlanID    *string `json:"plan_id"`
	Status    *string `json:"status"`
	Source    *string `json:"source"`
	ProductID *string `json:"product_id"`
	RenewsAt  *string `json:"renews_at"`
	ExpiresAt *string `json:"expires_at"`
}

type planWire struct {
	PlanID             *string  `json:"plan_id"`
	DisplayName        *string  `json:"display_name"`
	IsActive           *bool    `json:"is_active"`
	DailyCredits       *number  `json:"daily_credits"`
	PreviewCostCredits *number  `json:"preview_cost_credits"`
	FinalCostCredits   *number  `json:"final_cost_credits"`
	MonthlyPriceUSD    *number  `json:"monthly_price_usd"`
	IOSProductID       *string  `json:"ios_product_id"`
	AndroidProductID   *string  `json:"android_product_id"`
	WebProductID       *string  `json:"web_product_id"`
	Features           []string `json:"features"`
}

type profileWire struct {
	UserID            *string          `json:"user_id"`
	Credits           *creditsWire     `json:"credits"`
	Entitlement       *entitlementWire `json:"entitlement"`
	EffectivePlan     *planWire        `json:"effective_plan"`
	NextCreditResetAt *string          `json:"next_credit_reset_at"`
}

type boardProjectWire struct {
	ProjectID       *string `json:"project_id"`
	CoverImageURL   *string `json:"cover_image_url"`
	GenerationCount *number `json:"generation_count"`
	LastJobID       *string `json:"last_job_id"`
	LastStyleID     *string `json:"last_style_id"`
	LastStatus      *string `json:"last_status"`
	LastOutputURL   *string `json:"last_output_url"`
	LastUpdatedAt   *string `json:"last_updated_at"`
}

type boardWire struct {
	UserID   *string            `json:"user_id"`
	Projects []boardProjectWire `json:"projects"`
}

type assignmentWire struct {
	ExperimentID *string `json:"experiment_id"`
	UserID       *string `json:"user_id"`
	VariantID    *string `json:"variant_id"`
	FromCache    *bool   `json:"from_cache"`
	AssignedAt   *string `json:"assigned_at"`
}

type providerDefaultsWire struct {
	DefaultProvider *string  `json:"default_provider"`
	FallbackChain   []string `json:"fallback_chain"`
	Version         *number  `json:"version"`
}

type bootstrapWire struct {
	Me          *identityWire `json:"me"`
	Profile     *profileWire  `json:"profile"`
	Board       *boardWire    `json:"board"`
	Experiments *struct {
		Assignments []assignmentWire `json:"assignments"`
	} `json:"experiments"`
	Catalog          []planWire             `json:"catalog"`
	Variables        map[string]interface{} `json:"variables"`
	ProviderDefaults *providerDefaultsWire  `json:"provider_defaults"`
}

type discoverWire struct {
	Tabs     []string `json:"tabs"`
	Sections []struct {
		Key   *string `json:"key"`
		Title *string `json:"title"`
		Items []struct {
			ID             *string `json:"id"`
			Title          *string `json:"title"`
			Subtitle       *string `json:"subtitle"`
			Category       *string `json:"category"`
			BeforeImageURL *string `json:"before_image_url"`
			AfterImageURL  *string `json:"after_image_url"`
		} `json:"items"`
	} `json:"sections"`
}

// Mappers

func identityFromWire(path string, w *identityWire) (Identity, error) {
	if w == nil {
		return Identity{}, missingField(path)
	}
	if w.UserID == nil {
		return Identity{}, missingField(path + ".user_id")
	}
	expiresAt, err := parseTime(path+".expires_at", w.ExpiresAt)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:    *w.UserID,
		Platform:  w.Platform,
		ExpiresAt: expiresAt,
	}, nil
}

func renderJobFromWire(w *renderJobWire) (*RenderJob, error) {
	if w.ID == nil || *w.ID == "" {
		return nil, missingField("id")
	}
	if w.Status == nil {
		return nil, missingField("status")
	}
	status := JobStatus(*w.Status)
	if !status.Valid() {
		return nil, &DecodeError{Path: "status", Err: fmt.Errorf("unknown job status %q", *w.Status)}
	}
	updatedAt, err := parseTime("updated_at", w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job := &RenderJob{
		ID:               *w.ID,
		Status:           status,
		Provider:         strOr(w.Provider),
		ProviderModel:    strOr(w.ProviderModel),
		OutputURL:        w.OutputURL,
		ErrorCode:        w.ErrorCode,
		EstimatedCostUSD: floatPtr(w.EstimatedCostUSD),
		UpdatedAt:        updatedAt,
		ProjectID:        strOr(w.ProjectID),
		StyleID:          strOr(w.StyleID),
		Operation:        Operation(strOr(w.Operation)),
		Tier:             Tier(strOr(w.Tier)),
	}
	if w.TargetParts != nil {
		job.TargetParts = make([]TargetPart, len(w.TargetParts))
		for i, p := range w.TargetParts {
			job.TargetParts[i] = TargetPart(p)
		}
	}
	return job, nil
}

func cancelResultFromWire(w *cancelWire) (*CancelResult, error) {
	if w.ID == nil {
		return nil, missingField("id")
	}
	res := &CancelResult{ID: *w.ID, Canceled: w.Canceled}
	if w.Status != nil {
		res.Status = JobStatus(*w.Status)
		if !res.Status.Valid() {
			return nil, &DecodeError{Path: "status", Err: fmt.Errorf("unknown job status %q", *w.Status)}
		}
	}
	return res, nil
}

func planFromWire(w *planWire) Plan {
	p := Plan{
		PlanID:             strOr(w.PlanID),
		DisplayName:        strOr(w.DisplayName),
		IsActive:           w.IsActive,
		DailyCredits:       intPtr(w.DailyCredits),
		PreviewCostCredits: intPtr(w.PreviewCostCredits),
		FinalCostCredits:   intPtr(w.FinalCostCredits),
		MonthlyPriceUSD:    floatPtr(w.MonthlyPriceUSD),
		IOSProductID:       w.IOSProductID,
		AndroidProductID:   w.AndroidProductID,
		WebProductID:       w.WebProductID,
		Features:           w.Features,
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return p
}

func plansFromWire(ws []planWire) []Plan {
	plans := make([]Plan, len(ws))
	for i := range ws {
		plans[i] = planFromWire(&ws[i])
	}
	return plans
}

// creditsFromWire requires a balance: a credits object without one cannot be
// told apart from an empty account.
func creditsFromWire(path string, w *creditsWire) (*CreditBalance, error) {
	if w.Balance == nil {
		return nil, missingField(path + "balance")
	}
	return &CreditBalance{
		UserID:  strOr(w.UserID),
		Balance: w.Balance.int(),
	}, nil
}

func entitlementFromWire(path string, w *entitlementWire) (*Entitlement, error) {
	renewsAt, err := parseTime(path+"renews_at", w.RenewsAt)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseTime(path+"expires_at", w.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &Entitlement{
		UserID:    strOr(w.UserID),
		PlanID:    strOr(w.PlanID),
		Status:    strOr(w.Status),
		Source:    strOr(w.Source),
		ProductID: w.ProductID,
		RenewsAt:  renewsAt,
		ExpiresAt: expiresAt,
	}, nil
}

// profileFromWire maps a profile overview. prefix is the path of the object
// in the response, e.g. "profile." inside the bootstrap.
func profileFromWire(prefix string, w *profileWire) (ProfileOverview, error) {
	if w == nil {
		return ProfileOverview{}, missingField(strings.TrimSuffix(prefix, "."))
	}
	p := ProfileOverview{UserID: strOr(w.UserID)}
	if w.EffectivePlan != nil {
		plan := planFromWire(w.EffectivePlan)
		p.EffectivePlan = &plan
	}
	if w.Credits != nil {
		credits, err := creditsFromWire(prefix+"credits.", w.Credits)
		if err != nil {
			return ProfileOverview{}, err
		}
		p.Credits = credits
	}
	if w.Entitlement != nil {
		ent, err := entitlementFromWire(prefix+"entitlement.", w.Entitlement)
		if err != nil {
			return ProfileOverview{}, err
		}
		p.Entitlement = ent
	}
	next, err := parseTime(prefix+"next_credit_reset_at", w.NextCreditResetAt)
	if err != nil {
		return ProfileOverview{}, err
	}
	p.NextCreditResetAt = next
	return p, nil
}

// boardFromWire maps a project board; prefix works as in profileFromWire.
func boardFromWire(prefix string, w *boardWire) (Board, error) {
	if w == nil {
		return Board{}, missingField(strings.TrimSuffix(prefix, "."))
	}
	b := Board{
		UserID:   strOr(w.UserID),
		Projects: make([]BoardProject, 0, len(w.Projects)),
	}
	for i, pw := range w.Projects {
		path := fmt.Sprintf("%sprojects[%d]", prefix, i)
		if pw.ProjectID == nil {
			return Board{}, missingField(path + ".project_id")
		}
		updated, err := parseTime(path+".last_updated_at", pw.LastUpdatedAt)
		if err != nil {
			return Board{}, err
		}
		proj := BoardProject{
			ProjectID:       *pw.ProjectID,
			CoverImageURL:   pw.CoverImageURL,
			GenerationCount: intPtr(pw.GenerationCount),
			LastJobID:       pw.LastJobID,
			LastStyleID:     pw.LastStyleID,
			LastOutputURL:   pw.LastOutputURL,
			LastUpdatedAt:   updated,
		}
		if pw.LastStatus != nil {
			st := JobStatus(*pw.LastStatus)
			proj.LastStatus = &st
		}
		b.Projects = append(b.Projects, proj)
	}
	return b, nil
}

func assignmentsFromWire(prefix string, ws []assignmentWire) ([]ExperimentAssignment, error) {
	out := make([]ExperimentAssignment, 0, len(ws))
	for i, w := range ws {
		assignedAt, err := parseTime(fmt.Sprintf("%sassignments[%d].assigned_at", prefix, i), w.AssignedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, ExperimentAssignment{
			ExperimentID: strOr(w.ExperimentID),
			UserID:       strOr(w.UserID),
			VariantID:    strOr(w.VariantID),
			FromCache:    w.FromCache != nil && *w.FromCache,
			AssignedAt:   assignedAt,
		})
	}
	return out, nil
}

// bootstrapFromWire fails only when a required section (me, profile, board)
// is missing; optional sections default to empty values.
func bootstrapFromWire(w *bootstrapWire) (*BootstrapSnapshot, error) {
	me, err := identityFromWire("me", w.Me)
	if err != nil {
		return nil, err
	}
	profile, err := profileFromWire("profile.", w.Profile)
	if err != nil {
		return nil, err
	}
	board, err := boardFromWire("board.", w.Board)
	if err != nil {
		return nil, err
	}

	var assignments []assignmentWire
	if w.Experiments != nil {
		assignments = w.Experiments.Assignments
	}
	experiments, err := assignmentsFromWire("experiments.", assignments)
	if err != nil {
		return nil, err
	}

	snap := &BootstrapSnapshot{
		Me:          me,
		Profile:     profile,
		Board:       board,
		Experiments: experiments,
		Catalog:     plansFromWire(w.Catalog),
		Variables:   w.Variables,
		ProviderDefaults: ProviderDefaults{
			FallbackChain: []string{},
		},
	}
	if snap.Variables == nil {
		snap.Variables = map[string]interface{}{}
	}
	if pd := w.ProviderDefaults; pd != nil {
		snap.ProviderDefaults.DefaultProvider = strOr(pd.DefaultProvider)
		snap.ProviderDefaults.Version = intPtr(pd.Version)
		if pd.FallbackChain != nil {
			snap.ProviderDefaults.FallbackChain = pd.FallbackChain
		}
	}
	return snap, nil
}

func discoverFromWire(w *discoverWire) *DiscoverFeed {
	feed := &DiscoverFeed{
		Tabs:     w.Tabs,
		Sections: make([]DiscoverSection, 0, len(w.Sections)),
	}
	if feed.Tabs == nil {
		feed.Tabs = []string{}
	}
	for _, sw := range w.Sections {
		sec := DiscoverSection{
			Key:   strOr(sw.Key),
			Title: strOr(sw.Title),
			Items: make([]DiscoverItem, 0, len(sw.Items)),
		}
		for _, iw := range sw.Items {
			sec.Items = append(sec.Items, DiscoverItem{
				ID:             strOr(iw.ID),
				Title:          strOr(iw.Title),
				Subtitle:       strOr(iw.Subtitle),
				Category:       strOr(iw.Category),
				BeforeImageURL: strOr(iw.BeforeImageURL),
				AfterImageURL:  strOr(iw.AfterImageURL),
			})
		}
		feed.Sections = append(feed.Sections, sec)
	}
	return feed
}
