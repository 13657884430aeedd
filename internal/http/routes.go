package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth    *service.AuthService // Required
	Cookies CookieConfig
	// HealthChecks are probed by /healthz, keyed by dependency name.
	HealthChecks map[string]HealthCheck
	Title        string
	Logger       *slog.Logger // Optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	sessions := &SessionAccessor{Svc: services.Auth, Cookies: services.Cookies, Logger: logger}

	registerAuthRoutes(mux, &AuthHandlers{
		Svc:      services.Auth,
		Sessions: sessions,
		Cookies:  services.Cookies,
		Logger:   logger,
	})
	registerAPIRoutes(mux, &APIHandlers{Users: services.Auth}, sessions)

	pages := &PageHandlers{Sessions: sessions, Title: services.Title, Logger: logger}
	mux.HandleFunc("GET /{$}", pages.Index)

	health := healthHandler(services.HealthChecks)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return Recover(logger)(Logging(logger)(mux))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/session", h.Session)
	mux.HandleFunc("GET /auth/status", h.Status)
}

func registerAPIRoutes(mux *http.ServeMux, h *APIHandlers, sessions *SessionAccessor) {
	mux.Handle("GET /api/me", RequireAuth(sessions)(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/admin/users", RequireRole(sessions, domainauth.RoleAdmin)(http.HandlerFunc(h.ListUsers)))
}
