package userinfo

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/davidmonro/fence/internal/auth/provider"
)

// maxBody caps the userinfo response read into memory.
const maxBody = 1 << 20

// Config describes a plain OAuth2 provider with explicit endpoints.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Client exchanges the code for an access token and then reads the
// user's profile from the userinfo endpoint. The decoded JSON object is
// returned as-is.
type Client struct {
	name        string
	oauthConfig *oauth2.Config
	userInfoURL string
}

func New(cfg Config) (*Client, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%s oauth2 config missing required fields", cfg.Name)
	}
	return &Client{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) AuthURL(state string, codeChallenge string) string {
	return c.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (c *Client) Exchange(ctx context.Context, code string, codeVerifier string) (provider.Claims, error) {
	token, err := c.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s userinfo read failed: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s userinfo returned status %d", c.name, resp.StatusCode)
	}

	claims, err := provider.DecodeClaims(body)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo decode failed: %w", c.name, err)
	}
	return claims, nil
}
