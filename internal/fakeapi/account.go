package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// sameUser rejects a caller reading another user's resources.
func sameUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	if userFrom(r.Context()).Subject != userID {
		writeDetail(w, http.StatusForbidden, "forbidden_user_scope")
		return "", false
	}
	return userID, true
}

func entitlementBody(userID string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    userID,
		"plan_id":    freePlan.PlanID,
		"status":     "inactive",
		"source":     "none",
		"product_id": nil,
		"renews_at":  nil,
		"expires_at": nil,
	}
}

func profileBody(userID string, balance int, now time.Time) map[string]interface{} {
	resetAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return map[string]interface{}{
		"user_id":              userID,
		"credits":              map[string]interface{}{"user_id": userID, "balance": balance},
		"entitlement":          entitlementBody(userID),
		"effective_plan":       freePlan,
		"next_credit_reset_at": resetAt,
	}
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	userID, ok := sameUser(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r, "limit", 30, 100)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	board := s.boardLocked(userID, limit)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "projects": board})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := sameUser(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	balance := s.balanceLocked(userID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "balance": balance})
}

// handleEntitlement is public upstream; any user's entitlement can be read.
func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, entitlementBody(chi.URLParam(r, "userID")))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := sameUser(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	balance := s.balanceLocked(userID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, profileBody(userID, balance, s.now()))
}

func (s *Server) handleActiveExperiments(w http.ResponseWriter, r *http.Request) {
	userID, ok := sameUser(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r, "limit", 50, 200)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	out := assignments(userID, s.now())
	if len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "assignments": out})
}

type checkoutRequest struct {
	UserID     string `json:"user_id"`
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if userFrom(r.Context()).Subject != req.UserID {
		writeDetail(w, http.StatusForbidden, "forbidden_user_scope")
		return
	}

	var selected *plan
	for i := range plans {
		if plans[i].PlanID == strings.TrimSpace(req.PlanID) {
			selected = &plans[i]
		}
	}
	if selected == nil {
		writeDetail(w, http.StatusNotFound, "Plan not found")
		return
	}
	if selected.WebProductID == nil {
		writeDetail(w, http.StatusBadRequest, "Plan has no web product")
		return
	}

	q := url.Values{}
	q.Set("plan_id", selected.PlanID)
	q.Set("product_id", *selected.WebProductID)
	q.Set("user_id", req.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":   "wcs_" + uuid.NewString(),
		"checkout_url": "https://checkout.stripe.com/pay/homeai?" + q.Encode(),
		"provider":     "stripe",
	})
}
