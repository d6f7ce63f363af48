package userinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeProvider(t *testing.T, profile map[string]any, profileStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") != "verifier" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(profileStatus)
		_ = json.NewEncoder(w).Encode(profile)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Config{
		Name:        "orcid",
		ClientID:    "client",
		RedirectURL: "http://localhost:8080/login/orcid/callback",
		AuthURL:     base + "/authorize",
		TokenURL:    base + "/token",
		UserInfoURL: base + "/userinfo",
		Scopes:      []string{"openid"},
	})
	require.NoError(t, err)
	return c
}

func TestAuthURL(t *testing.T) {
	c := newTestClient(t, "https://idp.example")

	raw := c.AuthURL("state-1", "challenge-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "idp.example", u.Host)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestExchange(t *testing.T) {
	srv := newFakeProvider(t, map[string]any{"sub": "0000-0001", "email": "u@x.com", "id": 42}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	claims, err := c.Exchange(context.Background(), "good-code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "0000-0001", claims.String("sub"))
	assert.Equal(t, "u@x.com", claims.String("email"))
	assert.Equal(t, "42", claims.String("id"))
}

func TestExchangeKeepsLargeNumericID(t *testing.T) {
	srv := newFakeProvider(t, map[string]any{"id": uint64(12345678901234567891), "score": 1.5}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	claims, err := c.Exchange(context.Background(), "good-code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567891", claims.String("id"))
	assert.Empty(t, claims.String("score"))
}

func TestExchangeFailures(t *testing.T) {
	t.Run("token endpoint rejects code", func(t *testing.T) {
		srv := newFakeProvider(t, map[string]any{"sub": "x"}, http.StatusOK)
		c := newTestClient(t, srv.URL)

		_, err := c.Exchange(context.Background(), "bad-code", "verifier")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token exchange failed")
	})

	t.Run("userinfo error status", func(t *testing.T) {
		srv := newFakeProvider(t, map[string]any{"error": "boom"}, http.StatusInternalServerError)
		c := newTestClient(t, srv.URL)

		_, err := c.Exchange(context.Background(), "good-code", "verifier")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestNewRequiresEndpoints(t *testing.T) {
	_, err := New(Config{Name: "orcid", ClientID: "client"})
	require.Error(t, err)
}
