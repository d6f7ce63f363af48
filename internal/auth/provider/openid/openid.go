package openid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/logger"
)

// Config describes a generic OpenID Connect provider resolved by discovery.
type Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AuthURL replaces the discovered authorization endpoint. Used when the
	// browser reaches the provider through a different host than the server.
	AuthURL string
	Scopes  []string
}

// Client implements authorization code + PKCE against an OIDC issuer and
// returns the verified id_token claims.
type Client struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New initializes the provider using OIDC discovery on cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%s oidc config missing required fields", cfg.Name)
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s oidc provider: %w", cfg.Name, err)
	}

	endpoint := oidcProvider.Endpoint()
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Client{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// AuthURL builds the authorization URL with PKCE parameters.
func (c *Client) AuthURL(state string, codeChallenge string) string {
	return c.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems the code and returns the verified id_token claims.
func (c *Client) Exchange(ctx context.Context, code string, codeVerifier string) (provider.Claims, error) {
	token, err := c.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", c.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s did not return id_token", c.name)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s id_token verification failed: %w", c.name, err)
	}

	var raw json.RawMessage
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%s id_token claims parse failed: %w", c.name, err)
	}
	claims, err := provider.DecodeClaims(raw)
	if err != nil {
		return nil, fmt.Errorf("%s id_token claims parse failed: %w", c.name, err)
	}
	if claims.String("sub") == "" {
		return nil, errors.New(c.name + " id_token missing sub claim")
	}

	logger.Info("oidc id_token verified", map[string]any{
		"provider":      c.name,
		"issuer":        idToken.Issuer,
		"email_present": claims.String("email") != "",
		"audience":      idToken.Audience,
		"expiry_unix":   idToken.Expiry.Unix(),
	})

	return claims, nil
}
