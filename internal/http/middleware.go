package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

var (
	errAuthRequired     = errors.New("authentication required")
	errInsufficientRole = errors.New("insufficient role")
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			ref := &requestUser{}
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestUserKey{}, ref)))

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			if ref.id != "" {
				attrs = append(attrs, slog.String("user_id", ref.id))
			}
			logger.InfoContext(r.Context(), "http", attrs...)
		})
	}
}

// requestUser lets auth middleware further down the chain report the
// authenticated user back to Logging.
type requestUser struct{ id string }

type requestUserKey struct{}

func withSession(r *http.Request, session *domainauth.ClientSession) *http.Request {
	if ref, ok := r.Context().Value(requestUserKey{}).(*requestUser); ok {
		ref.id = session.User.ID
	}
	return r.WithContext(SetSessionInContext(r.Context(), session))
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns a middleware that requires a valid session.
// The session cookie is refreshed and the session is placed in the request context.
// Browsers are redirected to the login page; other clients get a 401.
func RequireAuth(acc *SessionAccessor) func(http.Handler) http.Handler {
	return requireSession(acc, "")
}

// RequireRole returns a middleware that requires a session whose role satisfies requiredRole.
// Role hierarchy: USER < ADMIN.
func RequireRole(acc *SessionAccessor, requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return requireSession(acc, requiredRole)
}

func requireSession(acc *SessionAccessor, requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := acc.ServerSession(w, r)
			if err != nil {
				WriteError(w, errorParamsFor(err, "session_lookup_failed"))
				return
			}
			if session == nil {
				unauthenticated(w, r)
				return
			}
			if requiredRole != "" && !session.User.Role.Satisfies(requiredRole) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "forbidden",
					Err:     errInsufficientRole,
				})
				return
			}
			next.ServeHTTP(w, withSession(r, session))
		})
	}
}

// OptionalAuth returns a middleware that adds the session to the request context when present.
// It never rejects a request and never writes cookies.
func OptionalAuth(acc *SessionAccessor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := acc.RenderSession(r)
			if err != nil {
				acc.logger().WarnContext(r.Context(), "optional session lookup failed", "error", err)
			}
			if session != nil {
				r = withSession(r, session)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && wantsHTML(r) {
		target := "/auth/login?redirect_uri=" + url.QueryEscape(safeRedirectPath(r.URL.RequestURI()))
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "unauthorized",
		Err:     errAuthRequired,
	})
}
