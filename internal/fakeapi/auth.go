package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTTLHours = 24 * 30
	maxTTLHours     = 24 * 90
)

var (
	errInvalidSigningMethod = errors.New("invalid signing method")
	errRevoked              = errors.New("token revoked")
)

type claims struct {
	Platform string `json:"platform,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func userFrom(ctx context.Context) *claims {
	c, _ := ctx.Value(ctxKey{}).(*claims)
	return c
}

func (s *Server) issue(userID, platform string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	c := claims{
		Platform: platform,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Server) validate(tokenString string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidSigningMethod
		}
		return s.opts.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	s.mu.Lock()
	_, revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if revoked {
		return nil, errRevoked
	}
	return c, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// authenticate resolves the caller or writes a 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*claims, bool) {
	token := bearer(r)
	if token == "" {
		writeDetail(w, http.StatusUnauthorized, "missing_or_invalid_token")
		return nil, false
	}
	c, err := s.validate(token)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "invalid_or_expired_token")
		return nil, false
	}
	return c, true
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c)))
	})
}

type loginRequest struct {
	UserID   string  `json:"user_id"`
	Platform *string `json:"platform"`
	TTLHours *int    `json:"ttl_hours"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid_json")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeValidation(w, "user_id", "field required")
		return
	}
	ttlHours := defaultTTLHours
	if req.TTLHours != nil {
		ttlHours = *req.TTLHours
	}
	if ttlHours < 1 || ttlHours > maxTTLHours {
		writeValidation(w, "ttl_hours", "ensure this value is between 1 and 2160")
		return
	}
	platform := ""
	if req.Platform != nil {
		platform = *req.Platform
	}

	token, expiresAt, err := s.issue(req.UserID, platform, time.Duration(ttlHours)*time.Hour)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token_issue_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      req.UserID,
		"expires_at":   expiresAt,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meBody(c))
}

func meBody(c *claims) map[string]interface{} {
	body := map[string]interface{}{
		"user_id":    c.Subject,
		"platform":   nil,
		"expires_at": c.ExpiresAt.Time.UTC(),
	}
	if c.Platform != "" {
		body["platform"] = c.Platform
	}
	return body
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.revoked[c.ID] = struct{}{}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
