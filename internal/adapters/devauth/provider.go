package devauth

// Package devauth provides a simple, config-driven AuthProvider for local development.

import (
	"context"
	"errors"
	"net/url"

	"github.com/target/sessionauth/internal/adapters/oauthstate"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
)

// ProviderID is recorded on accounts linked through this provider.
const ProviderID = "dev"

// Config controls the dev auth provider behavior.
// AccountID and Email are required.
type Config struct {
	AccountID string
	Name      string
	Email     string
	Image     string
	Roles     ports.RoleMapper
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state. Exchange ignores the code and returns the configured identity.
type Provider struct {
	profile domainauth.Profile
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.AccountID == "" {
		return nil, errors.New("dev auth: AccountID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}

	email := cfg.Email
	name := cfg.Name
	if name == "" {
		name = cfg.AccountID
	}
	prof := domainauth.Profile{
		ID:    cfg.AccountID,
		Name:  &name,
		Email: &email,
		Role:  domainauth.RoleUser,
	}
	if cfg.Image != "" {
		img := cfg.Image
		prof.Image = &img
	}
	if cfg.Roles != nil {
		prof.Role = cfg.Roles.Map(prof.Email)
	}
	return &Provider{profile: prof}, nil
}

func (p *Provider) ID() string { return ProviderID }

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, nonce, err := oauthstate.Pair()
	if err != nil {
		return "", "", "", err
	}
	// Our standard handler expects GET /auth/callback?code=...&state=...
	q := url.Values{"code": {"dev"}, "state": {state}}
	return "/auth/callback?" + q.Encode(), state, nonce, nil
}

// Exchange ignores the provided code (state is validated by the handler) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	return domainauth.Identity{
		Provider: ProviderID,
		Type:     domainauth.AccountTypeOAuth,
		Profile:  p.profile,
	}, nil
}
