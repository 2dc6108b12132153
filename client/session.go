package client

import (
	"book-club-api/model"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// State is the externally visible position of the session state machine.
// Refreshing is internal to the transport and intentionally not observable
// here; callers only experience momentarily queued requests.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// Session is the user-facing lifecycle wrapper around the transport: login,
// register, silent restore on startup, and logout.
type Session struct {
	client *Client

	mu    sync.Mutex
	state State
	user  *model.User
}

// NewSession wraps the transport. A terminal refresh failure reported by the
// transport drops the session back to Anonymous.
func NewSession(c *Client) *Session {
	s := &Session{client: c, state: StateAnonymous}
	c.Subscribe(func(ev Event) {
		if ev == EventSessionExpired {
			s.mu.Lock()
			s.state = StateAnonymous
			s.user = nil
			s.mu.Unlock()
		}
	})
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the identity of the authenticated user, or nil.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) setState(state State, user *model.User) {
	s.mu.Lock()
	s.state = state
	s.user = user
	s.mu.Unlock()
}

// Login authenticates with the server and establishes a session. On a
// credential rejection the state returns to Anonymous and the error is
// surfaced to the caller; no lifecycle event fires.
func (s *Session) Login(ctx context.Context, email, password string) (*model.User, error) {
	return s.authenticate(ctx, "/auth/login", model.LoginRequest{Email: email, Password: password})
}

// Register creates an account and establishes a session.
func (s *Session) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	return s.authenticate(ctx, "/auth/register", model.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
}

func (s *Session) authenticate(ctx context.Context, path string, payload interface{}) (*model.User, error) {
	s.setState(StateAuthenticating, nil)

	body, err := json.Marshal(payload)
	if err != nil {
		s.setState(StateAnonymous, nil)
		return nil, err
	}

	req, err := s.client.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		s.setState(StateAnonymous, nil)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		s.setState(StateAnonymous, nil)
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusBadRequest:
		io.Copy(io.Discard, resp.Body)
		s.setState(StateAnonymous, nil)
		return nil, ErrInvalidCredentials
	default:
		io.Copy(io.Discard, resp.Body)
		s.setState(StateAnonymous, nil)
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	var tokens model.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		s.setState(StateAnonymous, nil)
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	s.client.setAccessToken(tokens.AccessToken)

	user, err := s.fetchIdentity(ctx)
	if err != nil {
		s.client.clearAccessToken()
		s.setState(StateAnonymous, nil)
		return nil, err
	}

	s.setState(StateAuthenticated, user)
	s.client.emit(EventLogin)
	return user, nil
}

// RestoreSession attempts a silent refresh on startup: the refresh credential
// may still be present as a cookie from a prior visit. Failure leaves the
// session Anonymous without any notification.
func (s *Session) RestoreSession(ctx context.Context) (*model.User, error) {
	if _, err := s.client.refresh(); err != nil {
		s.setState(StateAnonymous, nil)
		return nil, ErrNotAuthenticated
	}

	user, err := s.fetchIdentity(ctx)
	if err != nil {
		s.client.clearAccessToken()
		s.setState(StateAnonymous, nil)
		return nil, ErrNotAuthenticated
	}

	s.setState(StateAuthenticated, user)
	s.client.emit(EventLogin)
	return user, nil
}

// Logout revokes the refresh credential server-side, then clears client state
// regardless of whether the server call succeeded. Calling it without an
// active session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	wasAuthenticated := s.state == StateAuthenticated
	s.mu.Unlock()

	// Best effort: the server may be unreachable, the client still logs out.
	if req, err := s.client.NewRequest(ctx, http.MethodPost, "/auth/logout", nil); err == nil {
		if resp, err := s.client.httpClient.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	s.client.clearAccessToken()
	s.setState(StateAnonymous, nil)
	if wasAuthenticated {
		s.client.emit(EventLogout)
	}
	return nil
}

// fetchIdentity hydrates the user profile through the transport, so an
// expired access token on the very first call is handled like any other.
func (s *Session) fetchIdentity(ctx context.Context) (*model.User, error) {
	req, err := s.client.NewRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d from /users/me", resp.StatusCode)
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &user, nil
}
