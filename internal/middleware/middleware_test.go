package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidmonro/fence/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSessionStore(t *testing.T) session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client)
}

func authRouter(store session.Store) *gin.Engine {
	r := gin.New()
	mw := NewAuthMiddleware(store, session.CookieOptions{})
	r.GET("/user", GinRequireAuth(mw), func(c *gin.Context) {
		sess, ok := SessionFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": sess.Username})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	store := newSessionStore(t)
	now := time.Now()
	require.NoError(t, store.Create(context.Background(), session.Session{
		SessionID: "sid-1",
		UserID:    "user-1",
		Username:  "bob@example.com",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
	r := authRouter(store)

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req.AddCookie(&http.Cookie{Name: session.InsecureCookieName, Value: "sid-1"})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"username":"bob@example.com"}`, rec.Body.String())
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req.AddCookie(&http.Cookie{Name: session.InsecureCookieName, Value: "nope"})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients are limited independently")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(idleLimiterTTL + time.Minute)
	assert.True(t, l.Allow("10.0.0.3"))
	l.mu.Lock()
	assert.Len(t, l.clients, 1, "idle limiters are evicted")
	l.mu.Unlock()
}

func TestRateLimiterGin(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	rejected := 0
	l.OnReject = func() { rejected++ }

	r := gin.New()
	r.GET("/login/:idp", l.Gin(), func(c *gin.Context) { c.Status(http.StatusFound) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/google", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/google", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, rejected)
}
