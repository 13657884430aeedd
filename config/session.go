package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionStoreKind selects where sessions are persisted.
type SessionStoreKind string

const (
	SessionStorePostgres SessionStoreKind = "postgres"
	SessionStoreRedis    SessionStoreKind = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := SessionStoreKind(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case SessionStorePostgres, SessionStoreRedis:
		*k = v
		return nil
	default:
		return fmt.Errorf("invalid SessionStore: %q (valid options: postgres, redis)", v)
	}
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	Store SessionStoreKind `env:"SESSION_STORE" envDefault:"postgres"`

	// MaxAge is how long an idle session stays valid.
	MaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"` // 30 days

	// UpdateAge throttles how often an active session's expiry is extended.
	UpdateAge time.Duration `env:"SESSION_UPDATE_AGE" envDefault:"24h"`

	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"session_id"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.Store == "" {
		s.Store = SessionStorePostgres
	}
	if s.MaxAge < time.Minute {
		s.MaxAge = 720 * time.Hour
	}
	if s.UpdateAge <= 0 || s.UpdateAge > s.MaxAge {
		s.UpdateAge = min(24*time.Hour, s.MaxAge)
	}
	if s.CookieName = strings.TrimSpace(s.CookieName); s.CookieName == "" {
		s.CookieName = "session_id"
	}
}
