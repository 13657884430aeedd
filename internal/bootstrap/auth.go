package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/sessionauth/config"
	"github.com/target/sessionauth/internal/adapters/authroles"
	"github.com/target/sessionauth/internal/adapters/devauth"
	"github.com/target/sessionauth/internal/adapters/github"
	"github.com/target/sessionauth/internal/adapters/oidc"
	redisadapter "github.com/target/sessionauth/internal/adapters/redis"
	"github.com/target/sessionauth/internal/data"
	"github.com/target/sessionauth/internal/observability/statsd"
	"github.com/target/sessionauth/internal/ports"
	"github.com/target/sessionauth/internal/service"
)

const redisSessionPrefix = "session:"

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	Session     config.SessionConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Required when Session.Store is redis
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// BuildAuthProvider creates the identity provider for the configured auth mode.
// Every provider derives roles from the single administrator email.
//
//nolint:ireturn // the provider is chosen at runtime.
func BuildAuthProvider(cfg config.AuthConfig) (ports.AuthProvider, error) {
	roles := authroles.AdminEmailMapper{AdminEmail: cfg.AdminEmail}

	switch cfg.Mode {
	case config.AuthModeGitHub, "":
		return github.NewProvider(github.ProviderConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scope:        cfg.GitHub.Scope,
			APIBaseURL:   cfg.GitHub.APIBaseURL,
			AuthURL:      cfg.GitHub.AuthURL,
			TokenURL:     cfg.GitHub.TokenURL,
			Roles:        roles,
		})

	case config.AuthModeOIDC:
		return oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scope:        cfg.OIDC.Scope,
			DiscoveryURL: cfg.OIDC.DiscoveryURL,
			Claims: oidc.ClaimPaths{
				ID:    cfg.OIDC.ClaimID,
				Name:  cfg.OIDC.ClaimName,
				Email: cfg.OIDC.ClaimEmail,
				Image: cfg.OIDC.ClaimImage,
			},
			Roles: roles,
		})

	case config.AuthModeMock:
		return devauth.NewProvider(devauth.Config{
			AccountID: cfg.DevAuth.AccountID,
			Name:      cfg.DevAuth.Name,
			Email:     cfg.DevAuth.Email,
			Image:     cfg.DevAuth.Image,
			Roles:     roles,
		})

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// BuildSessionStore returns the session store selected by SESSION_STORE.
//
//nolint:ireturn // the store is chosen at runtime.
func BuildSessionStore(
	kind config.SessionStoreKind,
	db *sql.DB,
	redisClient redis.UniversalClient,
) (ports.SessionStore, error) {
	switch kind {
	case config.SessionStorePostgres, "":
		if db == nil {
			return nil, errors.New("postgres session store requires a database")
		}
		return data.NewSessionRepo(db), nil
	case config.SessionStoreRedis:
		if redisClient == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return redisadapter.NewSessionStoreWithPrefix(redisClient, redisSessionPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", kind)
	}
}

// BuildAuthService wires the provider, user repository and session store into an AuthService.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, ports.SessionStore, error) {
	if cfg.DB == nil {
		return nil, nil, errors.New("auth service requires a database")
	}

	provider, err := BuildAuthProvider(cfg.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s provider: %w", cfg.Auth.Mode, err)
	}

	sessions, err := BuildSessionStore(cfg.Session.Store, cfg.DB, cfg.RedisClient)
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Users:     data.NewUserRepo(cfg.DB),
		Sessions:  sessions,
		MaxAge:    cfg.Session.MaxAge,
		UpdateAge: cfg.Session.UpdateAge,
		Now:       time.Now,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("auth configured",
			"mode", cfg.Auth.Mode,
			"provider", provider.ID(),
			"session_store", cfg.Session.Store,
			"admin_configured", cfg.Auth.AdminEmail != "",
		)
	}
	return svc, sessions, nil
}
