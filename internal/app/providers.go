package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/auth/provider/google"
	"github.com/davidmonro/fence/internal/auth/provider/keycloak"
	"github.com/davidmonro/fence/internal/auth/provider/openid"
	"github.com/davidmonro/fence/internal/auth/provider/userinfo"
	"github.com/davidmonro/fence/internal/config"
	"github.com/davidmonro/fence/internal/logger"
)

// Provider types accepted in the providers file.
const (
	TypeOIDC     = "oidc"
	TypeGoogle   = "google"
	TypeKeycloak = "keycloak"
	TypeOAuth2   = "oauth2"
)

// buildProviders constructs one client per configured provider. Providers
// in mock mode without client credentials get no client; the mock path
// never reaches one.
func buildProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var clients []provider.Client
	for _, name := range names {
		p := cfg.Provider(name)
		if cfg.MockEnabled(name) && p.ClientID == "" {
			logger.Warn("provider in mock mode without credentials", map[string]any{
				"idp": name,
			})
			continue
		}

		client, err := newClient(ctx, name, p)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		clients = append(clients, client)

		logger.Info("provider configured", map[string]any{
			"idp":  name,
			"type": p.Type,
			"mock": cfg.MockEnabled(name),
		})
	}

	return provider.NewRegistry(clients...)
}

func newClient(ctx context.Context, name string, p config.Provider) (provider.Client, error) {
	switch p.Type {
	case TypeGoogle:
		if name != TypeGoogle {
			return nil, fmt.Errorf("type %q must be configured under the name %q", TypeGoogle, TypeGoogle)
		}
		return asClient(google.New(ctx, p.ClientID, p.ClientSecret, p.RedirectURL))

	case TypeKeycloak:
		return asClient(keycloak.New(ctx, name, p.Issuer, p.ClientID, p.ClientSecret, p.RedirectURL, p.PublicURL))

	case TypeOAuth2:
		return asClient(userinfo.New(userinfo.Config{
			Name:         name,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			AuthURL:      p.AuthURL,
			TokenURL:     p.TokenURL,
			UserInfoURL:  p.UserInfoURL,
			Scopes:       p.Scopes,
		}))

	case TypeOIDC, "":
		return asClient(openid.New(ctx, openid.Config{
			Name:         name,
			Issuer:       p.Issuer,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			AuthURL:      p.AuthURL,
			Scopes:       p.Scopes,
		}))
	}
	return nil, fmt.Errorf("unknown provider type %q", p.Type)
}

// asClient keeps a failed constructor from yielding a non-nil interface
// around a nil pointer.
func asClient[T provider.Client](c T, err error) (provider.Client, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
