package homeai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SessionManager owns the client's single access token.
//
// It is the only writer of the token: Ensure and Restore install one,
// Invalidate, Logout and 401 responses clear it. Reads go through Token and
// Current. All methods are safe for concurrent use.
type SessionManager struct {
	client *Client

	mu      sync.RWMutex
	session Session

	group singleflight.Group
}

// Ensure makes sure the client holds a valid token for userID on the
// client's configured platform.
//
// A cached token is checked against the identity echo; it is kept when the
// echoed user matches. Otherwise, or when the check fails, the token is
// dropped and a login exchange mints a new one. Ensure is never retried
// internally. Concurrent calls for the same user share one exchange.
//
// The shared exchange does not stop when ctx is done. A caller whose ctx ends
// gets ctx.Err() at once, but an exchange already in flight still completes
// and installs its token, even when no caller is left waiting for it.
//
// Example:
//
//	if err := client.Sessions.Ensure(ctx, "u1"); err != nil {
//	    return err
//	}
func (s *SessionManager) Ensure(ctx context.Context, userID string) error {
	return s.EnsureFor(ctx, userID, s.client.platform)
}

// EnsureFor is Ensure with an explicit platform.
func (s *SessionManager) EnsureFor(ctx context.Context, userID string, platform Platform) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return NewValidationError("user_id", "is required")
	}
	if platform == "" {
		platform = s.client.platform
	}

	// The shared work is detached from any single caller's cancellation so
	// one caller leaving does not fail the others.
	key := string(platform) + "\x00" + userID
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return nil, s.ensure(context.WithoutCancel(ctx), userID, platform)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionManager) ensure(ctx context.Context, userID string, platform Platform) error {
	log := s.client.logger.With(slog.String("user_id", userID))

	if token := s.Token(); token != "" {
		me, err := s.identity(ctx, token)
		if err == nil && me.UserID == userID {
			s.mu.Lock()
			if s.session.AccessToken == token {
				s.session.UserID = userID
				if me.ExpiresAt != nil {
					s.session.ExpiresAt = *me.ExpiresAt
				}
			}
			s.mu.Unlock()
			log.Debug("session still valid")
			return nil
		}
		if err != nil {
			log.Info("cached token rejected, re-authenticating", slog.String("error", err.Error()))
		} else {
			log.Info("cached token belongs to another user, re-authenticating", slog.String("token_user_id", me.UserID))
		}
		s.invalidate(token)
	}

	return s.login(ctx, userID, platform)
}

func (s *SessionManager) login(ctx context.Context, userID string, platform Platform) error {
	body := map[string]interface{}{
		"user_id":   userID,
		"platform":  platform,
		"ttl_hours": int(s.client.tokenTTL / time.Hour),
	}

	var resp loginWire
	err := s.client.post(ctx, request{path: "/v1/auth/login-dev", body: body}, &resp)
	s.client.metrics.observeLogin(err)
	if err != nil {
		return &AuthError{UserID: userID, Reason: "login exchange failed", Err: err}
	}

	token := strings.TrimSpace(strOr(resp.AccessToken))
	if token == "" {
		return &AuthError{UserID: userID, Reason: "missing access token"}
	}
	if resp.UserID != nil && *resp.UserID != "" && *resp.UserID != userID {
		return &AuthError{UserID: userID, Reason: "token minted for user " + *resp.UserID}
	}
	expiresAt, err := parseTime("expires_at", resp.ExpiresAt)
	if err != nil {
		return &AuthError{UserID: userID, Reason: "malformed login response", Err: err}
	}

	next := Session{
		UserID:      userID,
		Platform:    platform,
		AccessToken: token,
	}
	if expiresAt != nil {
		next.ExpiresAt = *expiresAt
	}

	s.mu.Lock()
	s.session = next
	s.mu.Unlock()

	s.client.logger.Info("session established",
		slog.String("user_id", userID),
		slog.String("platform", string(platform)),
		slog.Time("expires_at", next.ExpiresAt),
	)
	return nil
}

func (s *SessionManager) identity(ctx context.Context, token string) (*Identity, error) {
	var resp identityWire
	if err := s.client.get(ctx, request{path: "/v1/auth/me", token: token}, &resp); err != nil {
		return nil, err
	}
	me, err := identityFromWire("me", &resp)
	if err != nil {
		return nil, err
	}
	return &me, nil
}

// Me calls the identity echo with the current token.
func (s *SessionManager) Me(ctx context.Context) (*Identity, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoSession
	}
	return s.identity(ctx, token)
}

// Logout revokes the current token server-side and clears it locally.
// The token is cleared even when the revoke call fails.
func (s *SessionManager) Logout(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return nil
	}
	err := s.client.post(ctx, request{path: "/v1/auth/logout", token: token}, nil)
	s.invalidate(token)
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return err
	}
	return nil
}

// Token returns the current access token, or "" when there is no session.
func (s *SessionManager) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

// Current returns a copy of the current session.
func (s *SessionManager) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Restore installs a previously persisted session. The next Ensure still
// validates it through the identity echo.
func (s *SessionManager) Restore(sess Session) {
	if sess.AccessToken == "" {
		return
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// Invalidate drops the current token.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	s.session = Session{}
	s.mu.Unlock()
}

// invalidate drops the token if it is the one that was rejected. A request
// sent without a token clears whatever is cached.
func (s *SessionManager) invalidate(rejected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.AccessToken == "" {
		return
	}
	if rejected == "" || rejected == s.session.AccessToken {
		s.session = Session{}
	}
}

// authorizedFor ensures a session for userID on the client's platform and
// returns its token.
func (s *SessionManager) authorizedFor(ctx context.Context, userID string, platform Platform) (string, error) {
	if err := s.EnsureFor(ctx, userID, platform); err != nil {
		return "", err
	}
	token, err := s.tokenFor(strings.TrimSpace(userID))
	if err != nil {
		// Another caller switched the session between Ensure and here.
		return "", fmt.Errorf("homeai: session changed while authorizing %q: %w", userID, err)
	}
	return token, nil
}

// tokenFor returns the current token only if it was minted for userID.
func (s *SessionManager) tokenFor(userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.AccessToken == "" || s.session.UserID != userID {
		return "", ErrNoSession
	}
	return s.session.AccessToken, nil
}
