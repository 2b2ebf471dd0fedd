// Package portal talks to the assessment portal backend: the authenticated
// session context and the assessment persistence endpoints.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrNotAuthenticated is returned when no usable token is available.
var ErrNotAuthenticated = errors.New("not logged in")

// Options configures a Session.
type Options struct {
	Timeout time.Duration
	Clock   clockwork.Clock
	Logger  *zerolog.Logger
}

// Session is the authenticated identity shared by every portal call. It is
// loaded once at startup and cleared on logout or on any 401 response.
type Session struct {
	store  TokenStore
	http   *fetch.Client
	clock  clockwork.Clock
	logger *zerolog.Logger

	mu     sync.Mutex
	token  string
	user   *types.User
	claims *Claims
}

// NewSession creates a session context for the portal at baseURL.
func NewSession(baseURL string, store TokenStore, opts *Options) (*Session, error) {
	if opts == nil {
		opts = &Options{}
	}
	if store == nil {
		store = &MemoryTokenStore{}
	}
	s := &Session{
		store:  store,
		clock:  opts.Clock,
		logger: logging.OrNop(opts.Logger),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	fo := fetch.DefaultOptions()
	if opts.Timeout > 0 {
		fo.Timeout = opts.Timeout
	}
	fo.Token = s.Token
	fo.OnUnauthorized = s.Clear

	c, err := fetch.NewClient(baseURL, fo)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal client: %w", err)
	}
	s.http = c
	return s, nil
}

// Load reads the stored token and resolves the current user. A missing or
// expired token yields ErrNotAuthenticated; an expired token is also cleared.
func (s *Session) Load(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotAuthenticated
	}

	claims, err := ParseClaims(token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable token")
		s.Clear()
		return ErrNotAuthenticated
	}
	if claims.Expired(s.clock.Now()) {
		s.logger.Info().Msg("stored token has expired")
		s.Clear()
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, ErrTokenExpired)
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()

	user, err := s.Me(ctx)
	if err != nil {
		if fetch.IsStatus(err, http.StatusUnauthorized) {
			return ErrNotAuthenticated
		}
		return err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

// Me fetches the current user from the backend.
func (s *Session) Me(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := s.http.JSON(ctx, http.MethodGet, "auth/me", nil, &user); err != nil {
		return nil, err
	}
	if user.Role == "" {
		if claims := s.Claims(); claims != nil {
			user.Role = claims.Type
		}
	}
	return &user, nil
}

// Login authenticates against the admin or participant endpoint and stores
// the returned token.
func (s *Session) Login(ctx context.Context, req *types.LoginRequest) (*types.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}

	path := "auth/login"
	if req.Role == types.RoleParticipant {
		path = "auth/participant-login"
	}

	var resp types.LoginResponse
	if err := s.http.JSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, fmt.Errorf("login response is missing token or user")
	}

	claims, err := ParseClaims(resp.Token)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(resp.Token); err != nil {
		return nil, err
	}
	if resp.User.Role == "" {
		resp.User.Role = claims.Type
	}

	s.mu.Lock()
	s.token = resp.Token
	s.claims = claims
	s.user = resp.User
	s.mu.Unlock()

	s.logger.Info().Int64("user_id", resp.User.ID).Str("role", resp.User.Role).Msg("logged in")
	return resp.User, nil
}

// Logout forgets the token and the user.
func (s *Session) Logout() error {
	s.clearMemory()
	return s.store.Clear()
}

// Clear drops the session after the backend rejected the token.
func (s *Session) Clear() {
	s.clearMemory()
	if err := s.store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear stored token")
	}
}

func (s *Session) clearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.claims = nil
}

// Token returns the current bearer token, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the authenticated user, or nil.
func (s *Session) User() *types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Claims returns the decoded token claims, or nil.
func (s *Session) Claims() *Claims {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

// Authenticated reports whether a user is loaded.
func (s *Session) Authenticated() bool {
	return s.User() != nil
}

// HTTP returns the authenticated client for other portal endpoints.
func (s *Session) HTTP() *fetch.Client {
	return s.http
}
