package config

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMode selects the identity provider.
type AuthMode string

const (
	// AuthModeGitHub signs users in with GitHub OAuth.
	AuthModeGitHub AuthMode = "github"
	// AuthModeOIDC signs users in with a generic OpenID Connect provider.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock uses a fixed development identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch AuthMode(v) {
	case AuthModeGitHub, AuthModeOIDC, AuthModeMock:
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: github, oidc, mock)", v)
	}
}

// GitHubConfig holds the GitHub OAuth app credentials.
type GitHubConfig struct {
	ClientID     string `env:"GITHUB_CLIENT_ID"`
	ClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	Scope        string `env:"GITHUB_SCOPE"         envDefault:"read:user user:email"`
	// Enterprise installs override these; empty means github.com.
	APIBaseURL string `env:"GITHUB_API_URL"`
	AuthURL    string `env:"GITHUB_AUTH_URL"`
	TokenURL   string `env:"GITHUB_TOKEN_URL"`
}

// OIDCConfig configures a generic OpenID Connect provider.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// JMESPath expressions selecting profile fields from ID token / userinfo claims.
	ClaimID    string `env:"CLAIM_ID"`
	ClaimName  string `env:"CLAIM_NAME"`
	ClaimEmail string `env:"CLAIM_EMAIL"`
	ClaimImage string `env:"CLAIM_IMAGE"`
}

// DevAuthConfig controls the identity returned when AUTH_MODE=mock.
type DevAuthConfig struct {
	AccountID string `env:"ACCOUNT_ID" envDefault:"dev-user"`
	Name      string `env:"NAME"       envDefault:"Dev User"`
	Email     string `env:"EMAIL"      envDefault:"dev@example.com"`
	Image     string `env:"IMAGE"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"github"`

	// AdminEmail is the single email granted ADMIN when its user is first created.
	AdminEmail string `env:"ADMIN"`

	// RedirectURL is the absolute callback URL registered with the provider.
	RedirectURL string `env:"AUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`

	GitHub  GitHubConfig
	OIDC    OIDCConfig    `envPrefix:"OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims values that are commonly pasted with whitespace.
// AdminEmail is kept verbatim since role derivation compares it exactly.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModeGitHub
	}
	a.GitHub.ClientID = strings.TrimSpace(a.GitHub.ClientID)
	a.GitHub.ClientSecret = strings.TrimSpace(a.GitHub.ClientSecret)
	a.OIDC.DiscoveryURL = strings.TrimSpace(a.OIDC.DiscoveryURL)
	a.RedirectURL = strings.TrimSpace(a.RedirectURL)
}

// Validate reports missing credentials for the selected mode.
func (a *AuthConfig) Validate() error {
	if a.RedirectURL == "" {
		return errors.New("AUTH_REDIRECT_URL is required")
	}
	switch a.Mode {
	case AuthModeGitHub:
		if a.GitHub.ClientID == "" || a.GitHub.ClientSecret == "" {
			return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required for AUTH_MODE=github")
		}
	case AuthModeOIDC:
		if a.OIDC.ClientID == "" || a.OIDC.ClientSecret == "" || a.OIDC.DiscoveryURL == "" {
			return errors.New("OIDC_CLIENT_ID, OIDC_CLIENT_SECRET and OIDC_DISCOVERY_URL are required for AUTH_MODE=oidc")
		}
	case AuthModeMock:
	default:
		return fmt.Errorf("unsupported auth mode %q", a.Mode)
	}
	return nil
}
