package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidmonro/fence/internal/auth/handler"
	"github.com/davidmonro/fence/internal/auth/login"
	"github.com/davidmonro/fence/internal/auth/redirect"
	"github.com/davidmonro/fence/internal/auth/resolver"
	"github.com/davidmonro/fence/internal/config"
	"github.com/davidmonro/fence/internal/logger"
	"github.com/davidmonro/fence/internal/metrics"
	"github.com/davidmonro/fence/internal/middleware"
	"github.com/davidmonro/fence/internal/session"
	"github.com/davidmonro/fence/internal/utils"
)

// flowCookieTTL bounds one login round-trip through the IdP.
const flowCookieTTL = 15 * time.Minute

func setupHTTP(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := newRouter(ctx, cfg, infra.Store, session.NewRedisStore(infra.Redis.Client), m)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}
	return router, infra.Close, nil
}

// newRouter wires the login service and routes onto the given stores.
func newRouter(
	ctx context.Context,
	cfg config.Config,
	store resolver.Store,
	sessionStore session.Store,
	m *metrics.Metrics,
) (*gin.Engine, error) {

	registry, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	validator, err := redirect.NewValidator(cfg.BaseURL, cfg.RedirectAllowlist)
	if err != nil {
		return nil, err
	}

	opts := []login.Option{login.WithRecorder(m)}
	mapper := resolver.NewMapper(store)
	for name := range cfg.Providers {
		if cfg.Provider(name).BindIdentity {
			opts = append(opts, login.WithHook(name, login.BindingHook{Mapper: mapper}))
		}
	}
	svc := login.NewService(cfg, registry, validator, store, opts...)

	cookie := session.CookieOptions{
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	secret := cfg.SessionSecret
	if secret == "" {
		// Development only; production config requires SESSION_SECRET.
		if secret, err = utils.RandomString(32); err != nil {
			return nil, err
		}
		logger.Warn("SESSION_SECRET not set, flow cookies will not survive a restart", nil)
	}
	flows := session.NewFlowStore(secret, cfg.SecureCookies, flowCookieTTL)
	authHandler := handler.NewHandler(svc, flows, sessionStore, cookie, cfg.SessionTTL)

	limiter := middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)
	limiter.OnReject = m.IncrementRateLimited
	authMiddleware := middleware.NewAuthMiddleware(sessionStore, cookie)

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router, limiter.Gin(), middleware.GinRequireAuth(authMiddleware))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}
