// Package sso signs portal users in through an OpenID Connect provider as an alternative to the
// Auth API's username and password login.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/internal/utils"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
	"golang.org/x/oauth2"
)

const defaultRoleClaim = "role"

// Config describes the OIDC client.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RoleClaim    string
	Scopes       []string
	HTTPClient   *http.Client
}

// ConfigFrom builds a Config from the portal configuration.
func ConfigFrom(cfg config.SSOConfig) Config {
	return Config{
		IssuerURL:    cfg.GetSSOIssuerURL(),
		ClientID:     cfg.GetSSOClientID(),
		ClientSecret: cfg.GetSSOClientSecret(),
		RedirectURL:  cfg.GetSSORedirectURL(),
		RoleClaim:    cfg.GetSSORoleClaim(),
	}
}

// Provider runs the authorization code flow with PKCE.
type Provider struct {
	oauth2    *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	provider  *oidc.Provider
	roleClaim string
	client    *http.Client
}

// AuthRequest is the state to remember between Begin and Exchange.
type AuthRequest struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
}

// Identity is the signed-in user and the credentials the portal keeps for them.
type Identity struct {
	Profile users.UserProfile
	Pair    token.Pair
	Expiry  time.Time
}

// NewProvider fetches the issuer's discovery document.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = oidc.ClientContext(ctx, client)

	op, err := oidc.NewProvider(ctx, strings.TrimSuffix(cfg.IssuerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[sso NewProvider] discovery: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	roleClaim := cfg.RoleClaim
	if roleClaim == "" {
		roleClaim = defaultRoleClaim
	}

	return &Provider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       scopes,
		},
		verifier:  op.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		provider:  op,
		roleClaim: roleClaim,
		client:    client,
	}, nil
}

// Begin creates the redirect to the identity provider.
func (p *Provider) Begin() (AuthRequest, error) {
	state, err := randomString(32)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("[sso Begin] state: %w", err)
	}
	nonce, err := randomString(32)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("[sso Begin] nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	url := p.oauth2.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
	return AuthRequest{URL: url, State: state, Nonce: nonce, CodeVerifier: verifier}, nil
}

type idClaims struct {
	Subject           string `json:"sub"`
	Nonce             string `json:"nonce"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// Exchange redeems code, verifies the ID token and maps its claims to a profile.
func (p *Provider) Exchange(ctx context.Context, code, nonce, codeVerifier string) (Identity, error) {
	if code == "" {
		return Identity{}, errors.Wrapf(errors.ErrInvalidRequest, "[sso Exchange] authorization code is required")
	}
	ctx = oidc.ClientContext(ctx, p.client)

	tok, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return Identity{}, errors.Wrapf(errors.ErrUnauthorized, "[sso Exchange] token exchange: %v", err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return Identity{}, errors.Wrapf(errors.ErrIncompleteResponse, "[sso Exchange] no id_token in response")
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[sso Exchange] verify id_token: %v", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[sso Exchange] claims: %v", err)
	}
	if claims.Nonce != nonce {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[sso Exchange] nonce mismatch")
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return Identity{}, errors.Wrapf(errors.ErrInvalidToken, "[sso Exchange] claims: %v", err)
	}

	profile := users.UserProfile{
		ID:        claims.Subject,
		Username:  firstNonEmpty(claims.PreferredUsername, claims.Email, claims.Subject),
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Email:     claims.Email,
		Role:      roleFrom(raw[p.roleClaim]),
	}

	// The guard needs a JWT with an exp claim; opaque access tokens are replaced by the ID token.
	access := tok.AccessToken
	if !token.ValidateTokenFormat(access) {
		access = rawID
	}
	expiry := idToken.Expiry
	if exp, ok := token.GetTokenExpirationTime(access); ok {
		expiry = exp
	}
	return Identity{
		Profile: profile,
		Pair:    token.Pair{AccessToken: access},
		Expiry:  expiry,
	}, nil
}

func roleFrom(v any) users.Role {
	switch r := v.(type) {
	case string:
		if roles := users.NormalizeRoles(strings.Split(r, ",")); len(roles) > 0 {
			return roles[0]
		}
	case []any:
		if roles := users.NormalizeRoles(utils.ToStringSlice(r)); len(roles) > 0 {
			return roles[0]
		}
	}
	return users.RoleNone
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
