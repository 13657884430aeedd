package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	apperrors "github.com/target/sessionauth/internal/errors"
	"github.com/target/sessionauth/internal/observability/metrics"
	"github.com/target/sessionauth/internal/observability/statsd"
	"github.com/target/sessionauth/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSessionMaxAge is how long an idle session stays valid.
	DefaultSessionMaxAge = 30 * 24 * time.Hour
	// DefaultSessionUpdateAge is how often an active session's expiry is pushed forward.
	DefaultSessionUpdateAge = 24 * time.Hour

	sessionLookupTimeout = 10 * time.Second
)

var (
	// ErrSessionExpired is returned when a token refers to a session past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrRevokeUnsupported is returned when the session store cannot enumerate sessions by user.
	ErrRevokeUnsupported = errors.New("session store does not support revocation by user")
	// ErrListUnsupported is returned when the user store cannot list users.
	ErrListUnsupported = errors.New("user store does not support listing")
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider // Required
	Users    ports.UserStore    // Required
	Sessions ports.SessionStore // Required

	// Callback shapes the session view; defaults to domainauth.EnrichSession.
	Callback domainauth.SessionCallback

	MaxAge    time.Duration    // Optional: defaults to DefaultSessionMaxAge
	UpdateAge time.Duration    // Optional: defaults to DefaultSessionUpdateAge
	Now       func() time.Time // Optional: defaults to time.Now
	Logger    *slog.Logger     // Optional
	Metrics   statsd.Sink      // Optional
}

// AuthService runs the sign-in flow and resolves session tokens into session views.
type AuthService struct {
	provider  ports.AuthProvider
	users     ports.UserStore
	sessions  ports.SessionStore
	callback  domainauth.SessionCallback
	maxAge    time.Duration
	updateAge time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink

	lookups singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("AuthProvider is required")
	case opts.Users == nil:
		return nil, errors.New("UserStore is required")
	case opts.Sessions == nil:
		return nil, errors.New("SessionStore is required")
	}

	s := &AuthService{
		provider:  opts.Provider,
		users:     opts.Users,
		sessions:  opts.Sessions,
		callback:  opts.Callback,
		maxAge:    opts.MaxAge,
		updateAge: opts.UpdateAge,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.callback == nil {
		s.callback = domainauth.EnrichSession
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultSessionMaxAge
	}
	if s.updateAge <= 0 {
		s.updateAge = DefaultSessionUpdateAge
	}
	if s.updateAge > s.maxAge {
		s.updateAge = s.maxAge
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "auth_service", "provider", opts.Provider.ID())
	return s, nil
}

// ProviderID returns the identifier of the configured provider.
func (s *AuthService) ProviderID() string { return s.provider.ID() }

// MaxAge returns the configured session lifetime.
func (s *AuthService) MaxAge() time.Duration { return s.maxAge }

// BeginLoginInput groups parameters for starting a login flow.
type BeginLoginInput struct {
	RedirectURL string
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, in BeginLoginInput) (*BeginLoginResult, error) {
	if in.RedirectURL == "" {
		return nil, apperrors.ValidationField("redirect_url", "redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: in.RedirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session   domainauth.Session
	User      domainauth.User
	IsNewUser bool
}

// CompleteLogin exchanges the authorization code for an identity, resolves or creates
// the user behind it, and opens a new session.
//
// A returning account keeps its stored user and role. A new account is only created
// when its email is not already held by a different user.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	start := s.now()
	res, err := s.completeLogin(ctx, in)

	m := metrics.LoginMetric{
		Provider: s.provider.ID(),
		Result:   metrics.ResultSuccess,
		Duration: s.now().Sub(start),
		Err:      err,
		Classify: classifyAuthError,
	}
	if err != nil {
		m.Result = metrics.ResultError
		s.logger.WarnContext(ctx, "login failed", "error", err, "error_class", classifyAuthError(err))
	} else {
		m.NewUser = res.IsNewUser
		s.logger.InfoContext(ctx, "login completed",
			"user_id", res.User.ID,
			"role", res.User.Role,
			"new_user", res.IsNewUser,
		)
	}
	metrics.EmitLogin(s.metrics, m)
	return res, err
}

func (s *AuthService) completeLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	switch {
	case in.Code == "":
		return nil, apperrors.ValidationField("code", "authorization code is required")
	case in.State == "":
		return nil, apperrors.ValidationField("state", "state parameter is required")
	case in.Nonce == "":
		return nil, apperrors.ValidationField("nonce", "nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  in.Code,
		State: in.State,
		Nonce: in.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if identity.Provider == "" {
		identity.Provider = s.provider.ID()
	}
	if identity.Profile.ID == "" {
		return nil, fmt.Errorf("exchange authorization code: %w", domainauth.ErrMalformedProfile)
	}

	user, isNew, err := s.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := domainauth.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &CompleteLoginResult{Session: sess, User: user, IsNewUser: isNew}, nil
}

func (s *AuthService) resolveUser(ctx context.Context, identity domainauth.Identity) (domainauth.User, bool, error) {
	profile := identity.Profile

	user, err := s.users.GetByAccount(ctx, identity.Provider, profile.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ports.ErrUserNotFound) {
		return domainauth.User{}, false, fmt.Errorf("lookup account: %w", err)
	}

	if profile.Email != nil && *profile.Email != "" {
		_, err = s.users.GetByEmail(ctx, *profile.Email)
		switch {
		case err == nil:
			return domainauth.User{}, false, domainauth.ErrAccountNotLinked
		case !errors.Is(err, ports.ErrUserNotFound):
			return domainauth.User{}, false, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	role := profile.Role
	if role == "" {
		role = domainauth.RoleUser
	}
	user, err = s.users.CreateWithAccount(ctx, ports.NewUser{
		Name:  profile.Name,
		Email: profile.Email,
		Image: profile.Image,
		Role:  role,
	}, identity.Account())
	if err != nil {
		return domainauth.User{}, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}

// GetSession resolves a session token into the enriched session view.
//
// Unknown tokens return ports.ErrSessionNotFound; expired sessions are deleted and
// return ErrSessionExpired. Expiry slides forward at most once per update age.
func (s *AuthService) GetSession(ctx context.Context, token string) (*domainauth.ClientSession, error) {
	if token == "" {
		metrics.EmitSessionLookup(s.metrics, metrics.ResultMissing, false)
		return nil, ports.ErrSessionNotFound
	}

	// The shared lookup outlives any single caller; each caller still honors its own ctx.
	ch := s.lookups.DoChan(token, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionLookupTimeout)
		defer cancel()
		return s.loadSession(lookupCtx, token)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		view := *res.Val.(*domainauth.ClientSession)
		return &view, nil
	}
}

func (s *AuthService) loadSession(ctx context.Context, token string) (*domainauth.ClientSession, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			metrics.EmitSessionLookup(s.metrics, metrics.ResultMissing, false)
			return nil, ports.ErrSessionNotFound
		}
		metrics.EmitSessionLookup(s.metrics, metrics.ResultError, false)
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := s.now().UTC()
	if sess.Expired(now) {
		metrics.EmitSessionLookup(s.metrics, metrics.ResultExpired, false)
		if delErr := s.sessions.Delete(ctx, token); delErr != nil {
			return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete session: %w", delErr))
		}
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrUserNotFound) {
			// Orphaned session; the user row is gone.
			if delErr := s.sessions.Delete(ctx, token); delErr != nil {
				s.logger.WarnContext(ctx, "failed to delete orphaned session", "user_id", sess.UserID, "error", delErr)
			}
			metrics.EmitSessionLookup(s.metrics, metrics.ResultMissing, false)
			return nil, ports.ErrSessionNotFound
		}
		metrics.EmitSessionLookup(s.metrics, metrics.ResultError, false)
		return nil, fmt.Errorf("get session user: %w", err)
	}

	extended := false
	if dueAt := sess.ExpiresAt.Add(s.updateAge - s.maxAge); !now.Before(dueAt) {
		sess.ExpiresAt = now.Add(s.maxAge)
		if err := s.sessions.Save(ctx, sess); err != nil {
			metrics.EmitSessionLookup(s.metrics, metrics.ResultError, false)
			return nil, fmt.Errorf("extend session: %w", err)
		}
		extended = true
	}

	metrics.EmitSessionLookup(s.metrics, metrics.ResultSuccess, extended)
	view := s.callback(domainauth.NewClientSession(user, sess.ExpiresAt), user)
	return &view, nil
}

// Logout deletes the session behind token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, ports.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeUserSessions deletes every session of userID and returns how many were removed.
func (s *AuthService) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.ValidationField("user_id", "user ID is required")
	}
	purger, ok := s.sessions.(ports.SessionPurger)
	if !ok {
		return 0, ErrRevokeUnsupported
	}
	n, err := purger.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "revoked user sessions", "user_id", userID, "count", n)
	return n, nil
}

// ListUsers pages through users for administrators.
func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]domainauth.User, error) {
	lister, ok := s.users.(ports.UserLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, err := lister.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func classifyAuthError(err error) string {
	switch {
	case errors.Is(err, domainauth.ErrAccountNotLinked):
		return "account_not_linked"
	case errors.Is(err, domainauth.ErrMalformedProfile):
		return "malformed_profile"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return ""
}
