package homeai

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// DefaultActiveExperimentLimit caps Account.Experiments when no limit is given.
const DefaultActiveExperimentLimit = 50

// AccountService reads per-user account state outside the bootstrap and
// starts web checkout. Every call ensures a session for the given user first
// and sends only that user's token.
type AccountService struct {
	client *Client
}

// CheckoutRequest starts a hosted web checkout for a plan.
type CheckoutRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	PlanID     string `json:"plan_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// CheckoutSession is a created checkout; the user completes it at CheckoutURL.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Provider    string `json:"provider"`
}

type checkoutWire struct {
	SessionID   *string `json:"session_id"`
	CheckoutURL *string `json:"checkout_url"`
	Provider    *string `json:"provider"`
}

type activeExperimentsWire struct {
	UserID      *string          `json:"user_id"`
	Assignments []assignmentWire `json:"assignments"`
}

// getFor reads a per-user resource with userID's token. route holds a
// {user_id} placeholder and doubles as the metrics label.
func (s *AccountService) getFor(ctx context.Context, userID, route string, query url.Values, result interface{}) error {
	token, err := s.client.Sessions.authorizedFor(ctx, userID, "")
	if err != nil {
		return err
	}
	path := strings.Replace(route, "{user_id}", url.PathEscape(strings.TrimSpace(userID)), 1)
	return s.client.get(ctx, request{path: path, route: route, query: query, token: token}, result)
}

// Board returns the user's project board, most recent first. A non-positive
// limit uses DefaultBoardLimit.
func (s *AccountService) Board(ctx context.Context, userID string, limit int) (*Board, error) {
	if limit <= 0 {
		limit = DefaultBoardLimit
	}
	var resp boardWire
	err := s.getFor(ctx, userID, "/v1/projects/board/{user_id}",
		url.Values{"limit": []string{strconv.Itoa(limit)}}, &resp)
	if err != nil {
		return nil, err
	}
	board, err := boardFromWire("", &resp)
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// Credits returns the user's credit balance.
func (s *AccountService) Credits(ctx context.Context, userID string) (*CreditBalance, error) {
	var resp creditsWire
	err := s.getFor(ctx, userID, "/v1/credits/balance/{user_id}", nil, &resp)
	if err != nil {
		return nil, err
	}
	return creditsFromWire("", &resp)
}

// Entitlement returns the user's subscription entitlement.
func (s *AccountService) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	var resp entitlementWire
	err := s.getFor(ctx, userID, "/v1/subscriptions/entitlements/{user_id}", nil, &resp)
	if err != nil {
		return nil, err
	}
	return entitlementFromWire("", &resp)
}

// Profile returns the user's profile overview.
func (s *AccountService) Profile(ctx context.Context, userID string) (*ProfileOverview, error) {
	var resp profileWire
	err := s.getFor(ctx, userID, "/v1/profile/overview/{user_id}", nil, &resp)
	if err != nil {
		return nil, err
	}
	p, err := profileFromWire("", &resp)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Experiments returns the user's active experiment assignments. A
// non-positive limit uses DefaultActiveExperimentLimit.
func (s *AccountService) Experiments(ctx context.Context, userID string, limit int) ([]ExperimentAssignment, error) {
	if limit <= 0 {
		limit = DefaultActiveExperimentLimit
	}
	var resp activeExperimentsWire
	err := s.getFor(ctx, userID, "/v1/experiments/active/{user_id}",
		url.Values{"limit": []string{strconv.Itoa(limit)}}, &resp)
	if err != nil {
		return nil, err
	}
	return assignmentsFromWire("", resp.Assignments)
}

// Checkout creates a web checkout session. The request is validated before
// any network call.
//
// Example:
//
//	sess, err := client.Account.Checkout(ctx, homeai.CheckoutRequest{
//	    UserID:     "u1",
//	    PlanID:     "pro",
//	    SuccessURL: "https://app.example.com/?checkout=success",
//	    CancelURL:  "https://app.example.com/?checkout=cancel",
//	})
func (s *AccountService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	token, err := s.client.Sessions.authorizedFor(ctx, req.UserID, "")
	if err != nil {
		return nil, err
	}

	var resp checkoutWire
	err = s.client.post(ctx, request{
		path:  "/v1/subscriptions/web/checkout-session",
		body:  req,
		token: token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.CheckoutURL == nil || *resp.CheckoutURL == "" {
		return nil, missingField("checkout_url")
	}
	return &CheckoutSession{
		SessionID:   strOr(resp.SessionID),
		CheckoutURL: *resp.CheckoutURL,
		Provider:    strOr(resp.Provider),
	}, nil
}
