package oidc

// Package oidc provides a generic OpenID Connect AuthProvider.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/sessionauth/internal/adapters/oauthstate"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	"github.com/target/sessionauth/internal/ports"
	"golang.org/x/oauth2"
)

// ProviderID is recorded on accounts linked through this provider.
const ProviderID = "oidc"

// Provider implements the AuthProvider interface using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	claims     *claimMapper
	roles      ports.RoleMapper

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	Claims       ClaimPaths
	Roles        ports.RoleMapper
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider. It performs discovery against the issuer.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	claims, err := newClaimMapper(config.Claims)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		claims:       claims,
		roles:        config.Roles,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, nonce, err := oauthstate.Pair()
	if err != nil {
		return "", "", "", err
	}

	// redirect_uri comes from the configured RedirectURL and must match it exactly
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	var fields profileFields
	rawIDToken := ""
	if p.hasOpenIDScope() {
		idClaims, raw, idErr := p.verifyIDToken(ctx, token, in.Nonce)
		if idErr != nil {
			return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", idErr)
		}
		rawIDToken = raw
		p.claims.apply(&fields, idClaims)
	}

	if !fields.complete() {
		uiClaims, uiErr := p.userInfoClaims(ctx, token)
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		p.claims.apply(&fields, uiClaims)
	}

	profile, err := p.toProfile(fields)
	if err != nil {
		return domainauth.Identity{}, err
	}

	scope, _ := token.Extra("scope").(string)
	return domainauth.Identity{
		Provider: ProviderID,
		Type:     domainauth.AccountTypeOIDC,
		Profile:  profile,
		Token: domainauth.Token{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenType:    token.TokenType,
			Scope:        scope,
			IDToken:      rawIDToken,
			Expiry:       token.Expiry,
		},
	}, nil
}

func (p *Provider) toProfile(f profileFields) (domainauth.Profile, error) {
	if f.id == "" {
		return domainauth.Profile{}, fmt.Errorf("%w: no subject claim", domainauth.ErrMalformedProfile)
	}
	prof := domainauth.Profile{
		ID:    f.id,
		Name:  optional(f.name),
		Email: optional(f.email),
		Image: optional(f.image),
		Role:  domainauth.RoleUser,
	}
	if p.roles != nil {
		prof.Role = p.roles.Map(prof.Email)
	}
	return prof, nil
}

func (p *Provider) verifyIDToken(
	ctx context.Context,
	tok *oauth2.Token,
	expectedNonce string,
) (map[string]any, string, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, "", err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, "", fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return nil, "", errors.New("invalid nonce")
	}
	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return nil, "", fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return claims, rawID, nil
}

func (p *Provider) userInfoClaims(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var claims map[string]any
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return claims, nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
