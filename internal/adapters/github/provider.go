package github

// Package github provides the GitHub OAuth AuthProvider.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/sessionauth/internal/adapters/oauthstate"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

// ProviderID is recorded on accounts linked through this provider.
const ProviderID = "github"

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultScope      = "read:user user:email"
	maxBodyBytes      = 1 << 20
)

// ProviderConfig holds configuration for the GitHub provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string // defaults to "read:user user:email"

	// APIBaseURL, AuthURL and TokenURL override the github.com endpoints (GitHub Enterprise).
	APIBaseURL string
	AuthURL    string
	TokenURL   string

	HTTPClient *http.Client     // Optional, defaults to a client with a 30s timeout
	Roles      ports.RoleMapper // Used by the default mapper
	Mapper     ProfileMapper    // Optional, defaults to DefaultProfileMapper(Roles)
}

// Provider implements ports.AuthProvider against GitHub OAuth apps.
type Provider struct {
	config     *oauth2.Config
	apiBase    string
	httpClient *http.Client
	mapper     ProfileMapper
}

// NewProvider creates a new GitHub provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	endpoint := oauthgithub.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	scope := cfg.Scope
	if strings.TrimSpace(scope) == "" {
		scope = defaultScope
	}

	apiBase := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}

	mapper := cfg.Mapper
	if mapper == nil {
		mapper = DefaultProfileMapper(cfg.Roles)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(scope),
			Endpoint:     endpoint,
		},
		apiBase:    apiBase,
		httpClient: httpClient,
		mapper:     mapper,
	}, nil
}

func (p *Provider) ID() string { return ProviderID }

// Begin returns the GitHub authorize URL. GitHub ignores the nonce; it is still
// generated so the callback flow is identical across providers.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, nonce, err := oauthstate.Pair()
	if err != nil {
		return "", "", "", err
	}
	authURL := p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "true"))
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}
	client := p.config.Client(ctx, token)

	var profile GitHubProfile
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return domainauth.Identity{}, fmt.Errorf("fetch user: %w", err)
	}

	// The public email is null when the user keeps it private; the user:email scope
	// still exposes the primary address.
	if profile.Email == nil {
		email, emailErr := p.primaryEmail(ctx, client)
		if emailErr != nil {
			return domainauth.Identity{}, fmt.Errorf("fetch emails: %w", emailErr)
		}
		profile.Email = email
	}

	mapped, err := p.mapper(profile)
	if err != nil {
		return domainauth.Identity{}, err
	}

	return domainauth.Identity{
		Provider: ProviderID,
		Type:     domainauth.AccountTypeOAuth,
		Profile:  mapped,
		Token:    tokenFromOAuth2(token),
	}, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *Provider) primaryEmail(ctx context.Context, client *http.Client) (*string, error) {
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified && e.Email != "" {
			addr := e.Email
			return &addr, nil
		}
	}
	return nil, nil
}

func (p *Provider) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "sessionauth")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func tokenFromOAuth2(tok *oauth2.Token) domainauth.Token {
	if tok == nil {
		return domainauth.Token{}
	}
	out := domainauth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}
