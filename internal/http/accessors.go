package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
	"github.com/target/sessionauth/internal/service"
)

// SessionResolver resolves a session token into the enriched session view.
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*domainauth.ClientSession, error)
}

// SessionAccessor exposes the current session to page renderers and API routes.
// Both accessors consult the auth service on every call; nothing is cached here.
type SessionAccessor struct {
	Svc     SessionResolver
	Cookies CookieConfig
	Logger  *slog.Logger
}

func (a *SessionAccessor) logger() *slog.Logger {
	if a != nil && a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// RenderSession returns the session of the request for server-rendered pages.
// A request without a valid session yields (nil, nil). It never writes to the response.
func (a *SessionAccessor) RenderSession(r *http.Request) (*domainauth.ClientSession, error) {
	token := a.Cookies.sessionToken(r)
	if token == "" {
		return nil, nil
	}
	sess, err := a.Svc.GetSession(r.Context(), token)
	if isNoSession(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ServerSession returns the session of the request for API routes.
// On success it re-issues the session cookie with the current expiry; an
// unknown or expired token has its cookie cleared and yields (nil, nil).
func (a *SessionAccessor) ServerSession(w http.ResponseWriter, r *http.Request) (*domainauth.ClientSession, error) {
	token := a.Cookies.sessionToken(r)
	if token == "" {
		return nil, nil
	}
	sess, err := a.Svc.GetSession(r.Context(), token)
	if isNoSession(err) {
		a.Cookies.clearSession(w, r)
		return nil, nil
	}
	if err != nil {
		a.logger().ErrorContext(r.Context(), "session lookup failed", "error", err)
		return nil, err
	}
	a.Cookies.setSession(w, r, token, sess.Expires)
	return sess, nil
}

func isNoSession(err error) bool {
	return errors.Is(err, ports.ErrSessionNotFound) || errors.Is(err, service.ErrSessionExpired)
}
