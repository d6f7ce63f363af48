package google

import (
	"context"
	"errors"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/davidmonro/fence/internal/auth/provider/openid"
)

const (
	providerName = "google"
	issuer       = "https://accounts.google.com"
)

// New returns an OIDC client bound to Google's issuer.
func New(
	ctx context.Context,
	clientID string,
	clientSecret string,
	redirectURL string,
) (*openid.Client, error) {

	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	return openid.New(ctx, openid.Config{
		Name:         providerName,
		Issuer:       issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			oidc.ScopeOpenID,
			"profile",
			"email",
		},
	})
}
