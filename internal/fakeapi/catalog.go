package fakeapi

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

type plan struct {
	PlanID             string   `json:"plan_id"`
	DisplayName        string   `json:"display_name"`
	IsActive           bool     `json:"is_active"`
	DailyCredits       int      `json:"daily_credits"`
	PreviewCostCredits int      `json:"preview_cost_credits"`
	FinalCostCredits   int      `json:"final_cost_credits"`
	MonthlyPriceUSD    float64  `json:"monthly_price_usd"`
	IOSProductID       *string  `json:"ios_product_id"`
	AndroidProductID   *string  `json:"android_product_id"`
	WebProductID       *string  `json:"web_product_id"`
	Features           []string `json:"features"`
}

func (p plan) costFor(tier string) int {
	if tier == "final" {
		return p.FinalCostCredits
	}
	return p.PreviewCostCredits
}

func productID(id string) *string { return &id }

var (
	freePlan = plan{
		PlanID:             "free",
		DisplayName:        "Free",
		IsActive:           true,
		DailyCredits:       3,
		PreviewCostCredits: 1,
		FinalCostCredits:   2,
		Features:           []string{"daily_free_credits", "preview_generation"},
	}
	proPlan = plan{
		PlanID:             "pro",
		DisplayName:        "Pro",
		IsActive:           true,
		DailyCredits:       80,
		PreviewCostCredits: 1,
		FinalCostCredits:   1,
		MonthlyPriceUSD:    14.99,
		IOSProductID:       productID("pro_monthly_ios"),
		AndroidProductID:   productID("pro_monthly_android"),
		WebProductID:       productID("pro_monthly_web"),
		Features:           []string{"higher_limits", "priority_queue", "no_ads"},
	}
	plans = []plan{freePlan, proPlan}
)

var discoverTabs = []string{"Home", "Garden", "Exterior Design"}

type discoverItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Category       string `json:"category"`
	BeforeImageURL string `json:"before_image_url"`
	AfterImageURL  string `json:"after_image_url"`
}

type discoverSection struct {
	Key   string         `json:"key"`
	Title string         `json:"title"`
	Items []discoverItem `json:"items"`
}

func item(id, title, subtitle, category string) discoverItem {
	return discoverItem{
		ID:             id,
		Title:          title,
		Subtitle:       subtitle,
		Category:       category,
		BeforeImageURL: fmt.Sprintf("https://picsum.photos/seed/%s-before/800/600", id),
		AfterImageURL:  fmt.Sprintf("https://picsum.photos/seed/%s-after/800/600", id),
	}
}

var discoverSections = []discoverSection{
	{Key: "kitchen", Title: "Kitchen", Items: []discoverItem{
		item("kitchen-modern", "Modern Kitchen", "Clean lines and matte finishes", "Home"),
		item("kitchen-rustic", "Rustic Kitchen", "Warm wood and open shelving", "Home"),
	}},
	{Key: "living-room", Title: "Living Room", Items: []discoverItem{
		item("living-japandi", "Japandi Living Room", "Calm neutrals and low furniture", "Home"),
		item("living-boho", "Boho Living Room", "Layered textiles and plants", "Home"),
	}},
	{Key: "garden", Title: "Garden", Items: []discoverItem{
		item("garden-zen", "Zen Garden", "Gravel, stone and moss", "Garden"),
		item("garden-cottage", "Cottage Garden", "Dense planting and winding paths", "Garden"),
	}},
	{Key: "exterior", Title: "Exterior", Items: []discoverItem{
		item("exterior-farmhouse", "Modern Farmhouse", "White board and batten with black trim", "Exterior Design"),
		item("exterior-mediterranean", "Mediterranean Villa", "Stucco walls and terracotta roof", "Exterior Design"),
	}},
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	tab := strings.TrimSpace(r.URL.Query().Get("tab"))

	sections := make([]discoverSection, 0, len(discoverSections))
	for _, sec := range discoverSections {
		if tab == "" {
			sections = append(sections, sec)
			continue
		}
		filtered := discoverSection{Key: sec.Key, Title: sec.Title, Items: []discoverItem{}}
		for _, it := range sec.Items {
			if strings.EqualFold(it.Category, tab) {
				filtered.Items = append(filtered.Items, it)
			}
		}
		if len(filtered.Items) > 0 {
			sections = append(sections, filtered)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tabs":     discoverTabs,
		"sections": sections,
	})
}

// queryLimit reads a positive integer query parameter, at most upper.
func queryLimit(r *http.Request, name string, def, upper int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, fmt.Errorf("%s must be between 1 and %d", name, upper)
	}
	return n, nil
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())

	boardLimit, err := queryLimit(r, "board_limit", 30, 200)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	experimentLimit, err := queryLimit(r, "experiment_limit", 50, 200)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := s.now()
	userID := caller.Subject

	s.mu.Lock()
	balance := s.balanceLocked(userID)
	board := s.boardLocked(userID, boardLimit)
	s.mu.Unlock()

	experiments := assignments(userID, now)
	if len(experiments) > experimentLimit {
		experiments = experiments[:experimentLimit]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"me":      meBody(caller),
		"profile": profileBody(userID, balance, now),
		"board": map[string]interface{}{
			"user_id":  userID,
			"projects": board,
		},
		"experiments": map[string]interface{}{"assignments": experiments},
		"catalog":     plans,
		"variables": map[string]interface{}{
			"daily_credit_limit_enabled":    true,
			"preview_before_final_required": s.opts.RequirePreviewBeforeFinal,
		},
		"provider_defaults": map[string]interface{}{
			"default_provider": provider,
			"fallback_chain":   []string{provider},
			"version":          1,
		},
	})
}

// boardLocked returns the user's projects, most recently updated first.
func (s *Server) boardLocked(userID string, limit int) []map[string]interface{} {
	projects := make([]*project, 0, len(s.projects[userID]))
	for _, p := range s.projects[userID] {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].LastUpdatedAt.Equal(projects[j].LastUpdatedAt) {
			return projects[i].ProjectID < projects[j].ProjectID
		}
		return projects[i].LastUpdatedAt.After(projects[j].LastUpdatedAt)
	})
	if len(projects) > limit {
		projects = projects[:limit]
	}

	out := make([]map[string]interface{}, 0, len(projects))
	for _, p := range projects {
		out = append(out, map[string]interface{}{
			"project_id":       p.ProjectID,
			"cover_image_url":  p.CoverImageURL,
			"generation_count": p.GenerationCount,
			"last_job_id":      p.LastJobID,
			"last_style_id":    p.LastStyleID,
			"last_status":      p.LastStatus,
			"last_output_url":  p.LastOutputURL,
			"last_updated_at":  p.LastUpdatedAt,
		})
	}
	return out
}

// assignments buckets the user into the running experiments by a stable hash.
func assignments(userID string, now time.Time) []map[string]interface{} {
	experiments := []struct {
		id       string
		variants []string
	}{
		{id: "paywall_copy_v1", variants: []string{"control", "urgency"}},
		{id: "onboarding_flow_v2", variants: []string{"control", "short", "guided"}},
	}

	out := make([]map[string]interface{}, 0, len(experiments))
	for _, exp := range experiments {
		h := fnv.New32a()
		_, _ = h.Write([]byte(exp.id + ":" + userID))
		out = append(out, map[string]interface{}{
			"experiment_id": exp.id,
			"user_id":       userID,
			"variant_id":    exp.variants[h.Sum32()%uint32(len(exp.variants))],
			"from_cache":    false,
			"assigned_at":   now,
		})
	}
	return out
}
