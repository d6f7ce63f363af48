package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowRoundTrip(t *testing.T) {
	store := NewFlowStore("secret", false, 10*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/login/google", nil)
	rec := httptest.NewRecorder()

	flow, err := store.Load(req)
	require.NoError(t, err)
	assert.Empty(t, flow.Get(KeyRedirect))

	flow.Set(KeyRedirect, "https://app.example/cb")
	flow.Set(KeyClientID, "client-1")
	require.NoError(t, flow.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, FlowCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotContains(t, cookies[0].Value, "app.example", "value is encrypted")

	next := httptest.NewRequest(http.MethodGet, "/login/google/callback", nil)
	next.AddCookie(cookies[0])

	flow, err = store.Load(next)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/cb", flow.Get(KeyRedirect))
	assert.Equal(t, "client-1", flow.Get(KeyClientID))
	assert.Empty(t, flow.Get(KeyShibIdP))

	flow.Delete(KeyRedirect)
	assert.Empty(t, flow.Get(KeyRedirect))
}

func TestFlowRejectsForeignSecret(t *testing.T) {
	issuer := NewFlowStore("secret-a", false, time.Minute)
	verifier := NewFlowStore("secret-b", false, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	flow, err := issuer.Load(req)
	require.NoError(t, err)
	flow.Set(KeyRedirect, "https://evil.example")
	require.NoError(t, flow.Save(req, rec))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}

	flow, err = verifier.Load(next)
	assert.Error(t, err)
	require.NotNil(t, flow)
	assert.Empty(t, flow.Get(KeyRedirect))
}

func TestCookieOptions(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, "sid", time.Now().Add(time.Hour), CookieOptions{Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, "sid", ReadCookie(req, CookieOptions{Secure: true}))
	assert.Empty(t, ReadCookie(req, CookieOptions{}))

	rec = httptest.NewRecorder()
	ClearCookie(rec, CookieOptions{})
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, InsecureCookieName, cleared[0].Name)
	assert.Equal(t, -1, cleared[0].MaxAge)
}
