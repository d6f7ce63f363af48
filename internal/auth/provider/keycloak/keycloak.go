package keycloak

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/davidmonro/fence/internal/auth/provider/openid"
)

// New initializes a Keycloak realm client using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/gateway
//
// publicBaseURL is the browser-facing Keycloak origin. When set, the
// authorization endpoint is rewritten onto it while token and key
// endpoints keep the discovered (internal) host.
func New(
	ctx context.Context,
	name string,
	issuer string,
	clientID string,
	clientSecret string,
	redirectURL string,
	publicBaseURL string,
) (*openid.Client, error) {

	if name == "" || issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	authURL, err := publicAuthURL(issuer, publicBaseURL)
	if err != nil {
		return nil, err
	}

	return openid.New(ctx, openid.Config{
		Name:         name,
		Issuer:       issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		AuthURL:      authURL,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	})
}

// publicAuthURL maps the realm issuer onto publicBaseURL:
// http://keycloak:8080/realms/x + https://sso.example
// -> https://sso.example/realms/x/protocol/openid-connect/auth
func publicAuthURL(issuer, publicBaseURL string) (string, error) {
	if publicBaseURL == "" {
		return "", nil
	}
	u, err := url.Parse(issuer)
	if err != nil {
		return "", errors.New("keycloak issuer is not a url")
	}
	return strings.TrimRight(publicBaseURL, "/") + u.Path + "/protocol/openid-connect/auth", nil
}
