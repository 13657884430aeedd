package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

var (
	// ErrSessionNotFound is returned by SessionStore implementations for unknown tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is returned by UserStore implementations when no user matches.
	ErrUserNotFound = errors.New("user not found")
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// ID returns the provider identifier recorded on linked accounts (e.g. "github").
	ID() string

	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow and returns the mapped identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// NewUser is the data needed to create a user from a mapped provider profile.
type NewUser struct {
	Name  *string
	Email *string
	Image *string
	Role  domainauth.Role
}

// UserStore persists users and their linked provider accounts.
type UserStore interface {
	// CreateWithAccount creates a user and links the provider account atomically.
	CreateWithAccount(ctx context.Context, user NewUser, account domainauth.Account) (domainauth.User, error)
	GetByID(ctx context.Context, id string) (domainauth.User, error)
	GetByEmail(ctx context.Context, email string) (domainauth.User, error)
	GetByAccount(ctx context.Context, provider, providerAccountID string) (domainauth.User, error)
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionPurger is implemented by session stores that need explicit expiry cleanup.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time, batchSize int) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// RoleMapper derives an application role from a profile email.
type RoleMapper interface {
	Map(email *string) domainauth.Role
}

// UserLister pages through users for administrative views.
type UserLister interface {
	List(ctx context.Context, limit, offset int) ([]domainauth.User, error)
}
