package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"time"
)

// Role represents an application's authorization role.
// Stored verbatim in the users table and exposed on the session view.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// AccountType describes how a linked account authenticated.
type AccountType string

const (
	AccountTypeOAuth AccountType = "oauth"
	AccountTypeOIDC  AccountType = "oidc"
)

var (
	// ErrMalformedProfile is returned when a provider profile lacks a stable identifier.
	ErrMalformedProfile = errors.New("malformed provider profile")
	// ErrAccountNotLinked is returned when a new provider account carries an email that
	// already belongs to a different user.
	ErrAccountNotLinked = errors.New("account not linked: email already in use by another user")
	// ErrInvalidRole is returned when parsing an unknown role string.
	ErrInvalidRole = errors.New("invalid role")
)

// Profile is the application user shape produced by a provider profile mapper.
// ID is the provider's account identifier, not the application user id.
type Profile struct {
	ID    string
	Name  *string
	Email *string
	Image *string
	Role  Role
}

// Token holds the OAuth credentials returned by a provider exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	IDToken      string
	Expiry       time.Time
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific payloads into this shape.
type Identity struct {
	Provider string // provider id, e.g. "github"
	Type     AccountType
	Profile  Profile
	Token    Token
}

// User is the persisted application user.
type User struct {
	ID            string     `json:"id"            db:"id"`
	Name          *string    `json:"name"          db:"name"`
	Email         *string    `json:"email"         db:"email"`
	EmailVerified *time.Time `json:"emailVerified" db:"email_verified"`
	Image         *string    `json:"image"         db:"image"`
	Role          Role       `json:"role"          db:"role"`
	CreatedAt     time.Time  `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt"     db:"updated_at"`
}

// Account links a provider identity to a User.
type Account struct {
	ID                string      `db:"id"`
	UserID            string      `db:"user_id"`
	Type              AccountType `db:"type"`
	Provider          string      `db:"provider"`
	ProviderAccountID string      `db:"provider_account_id"`
	AccessToken       *string     `db:"access_token"`
	RefreshToken      *string     `db:"refresh_token"`
	TokenType         *string     `db:"token_type"`
	Scope             *string     `db:"scope"`
	IDToken           *string     `db:"id_token"`
	ExpiresAt         *time.Time  `db:"expires_at"`
	CreatedAt         time.Time   `db:"created_at"`
}

// Session is the server-side record we persist for an authenticated user.
// ID is the opaque session token carried in the session cookie.
type Session struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// SessionUser is the user portion of the client-facing session view.
type SessionUser struct {
	ID    string  `json:"id,omitempty"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Image *string `json:"image"`
	Role  Role    `json:"role,omitempty"`
}

// ClientSession is the session view handed to pages and API routes.
type ClientSession struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// IsAdmin reports whether the session belongs to an administrator.
func (s ClientSession) IsAdmin() bool { return s.User.Role == RoleAdmin }

// Account builds the account row linking this identity to a user.
func (i Identity) Account() Account {
	acct := Account{
		Type:              i.Type,
		Provider:          i.Provider,
		ProviderAccountID: i.Profile.ID,
		AccessToken:       optional(i.Token.AccessToken),
		RefreshToken:      optional(i.Token.RefreshToken),
		TokenType:         optional(i.Token.TokenType),
		Scope:             optional(i.Token.Scope),
		IDToken:           optional(i.Token.IDToken),
	}
	if acct.Type == "" {
		acct.Type = AccountTypeOAuth
	}
	if !i.Token.Expiry.IsZero() {
		exp := i.Token.Expiry.UTC()
		acct.ExpiresAt = &exp
	}
	return acct
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
