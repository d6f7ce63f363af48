package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davidmonro/fence/internal/auth"
	"github.com/davidmonro/fence/internal/auth/login"
	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/auth/resolver"
	"github.com/davidmonro/fence/internal/logger"
	"github.com/davidmonro/fence/internal/middleware"
	"github.com/davidmonro/fence/internal/session"
)

type Handler struct {
	login        *login.Service
	flows        *session.FlowStore
	sessionStore session.Store
	cookie       session.CookieOptions
	sessionTTL   time.Duration
}

func NewHandler(
	svc *login.Service,
	flows *session.FlowStore,
	sessionStore session.Store,
	cookie session.CookieOptions,
	sessionTTL time.Duration,
) *Handler {
	return &Handler{
		login:        svc,
		flows:        flows,
		sessionStore: sessionStore,
		cookie:       cookie,
		sessionTTL:   sessionTTL,
	}
}

// RegisterRoutes mounts the login routes. loginMW wraps both login
// endpoints, authMW guards /user.
func (h *Handler) RegisterRoutes(r gin.IRouter, loginMW, authMW gin.HandlerFunc) {
	r.GET("/login/:idp", loginMW, h.Login)
	r.GET("/login/:idp/callback", loginMW, h.Callback)
	r.POST("/logout", h.Logout)
	r.GET("/user", authMW, h.User)
}

// ambientMarkers are copied from the login query into the flow session.
var ambientMarkers = map[string]string{
	"idp":       session.KeyFenceIdP,
	"shib_idp":  session.KeyShibIdP,
	"client_id": session.KeyClientID,
}

func (h *Handler) Login(c *gin.Context) {
	idpName := c.Param("idp")
	flow := h.loadFlow(c)

	for param, key := range ambientMarkers {
		if v := c.Query(param); v != "" {
			flow.Set(key, v)
		}
	}

	state, err := h.generateState(c)
	if err != nil {
		writeError(c, idpName, err)
		return
	}
	_, challenge, err := h.generatePKCE(c)
	if err != nil {
		writeError(c, idpName, err)
		return
	}

	rc := newRequestContext(c, flow)
	resp, err := h.login.Start(c.Request.Context(), rc,
		login.LoginRequest{IdPName: idpName, Redirect: c.Query("redirect")},
		login.AuthParams{State: state, CodeChallenge: challenge},
	)
	if err != nil {
		writeError(c, idpName, err)
		return
	}

	h.finish(c, rc, flow, idpName, resp)
}

func (h *Handler) Callback(c *gin.Context) {
	idpName := c.Param("idp")
	flow := h.loadFlow(c)

	var verifier string
	if c.Query("error") == "" {
		if !validateState(c) {
			logger.Warn("callback state mismatch", map[string]any{
				"idp": idpName,
				"ip":  c.ClientIP(),
			})
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid state",
			})
			return
		}

		verifier = getPKCEVerifier(c)
		if verifier == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing pkce verifier",
			})
			return
		}
	}
	h.clearFlowCookie(c, stateCookieName)
	h.clearFlowCookie(c, pkceCookieName)

	rc := newRequestContext(c, flow)
	resp, err := h.login.Complete(c.Request.Context(), rc, idpName, c.Request.URL.RawQuery, verifier)
	if err != nil {
		writeError(c, idpName, err)
		return
	}

	h.finish(c, rc, flow, idpName, resp)
}

// finish issues the authenticated session when the login completed, saves
// the flow cookie and writes resp.
func (h *Handler) finish(c *gin.Context, rc *login.RequestContext, flow *session.Flow, idpName string, resp login.Response) {
	if rc.User != nil {
		if err := h.issueSession(c, *rc.User, idpName); err != nil {
			writeError(c, idpName, err)
			return
		}
	}
	if rc.Audit != nil {
		logger.Info("login_audit", rc.Audit.Fields())
	}

	if err := flow.Save(c.Request, c.Writer); err != nil {
		writeError(c, idpName, err)
		return
	}

	switch resp.Kind {
	case login.ResponseRedirect:
		c.Redirect(http.StatusFound, resp.Location)
	default:
		c.JSON(http.StatusOK, resp.Body)
	}
}

func (h *Handler) issueSession(c *gin.Context, user resolver.User, idpName string) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := time.Now()
	sess := session.Session{
		SessionID: sessionID,
		UserID:    user.ID,
		Username:  user.Username,
		Provider:  idpName,
		CreatedAt: now,
		ExpiresAt: now.Add(h.sessionTTL),
	}
	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		return err
	}

	session.SetCookie(c.Writer, sessionID, sess.ExpiresAt, h.cookie)
	return nil
}

func (h *Handler) loadFlow(c *gin.Context) *session.Flow {
	flow, err := h.flows.Load(c.Request)
	if err != nil {
		// Stale or foreign cookie: continue with a fresh flow.
		logger.Warn("discarding unreadable flow cookie", map[string]any{
			"error": err.Error(),
		})
	}
	return flow
}

func newRequestContext(c *gin.Context, flow *session.Flow) *login.RequestContext {
	cookies := make(map[string]string)
	for _, ck := range c.Request.Cookies() {
		if _, seen := cookies[ck.Name]; !seen {
			cookies[ck.Name] = ck.Value
		}
	}
	return &login.RequestContext{Session: flow, Cookies: cookies}
}

func (h *Handler) Logout(c *gin.Context) {
	if sessionID := session.ReadCookie(c.Request, h.cookie); sessionID != "" {
		// best-effort
		if err := h.sessionStore.Delete(c.Request.Context(), sessionID); err != nil {
			logger.Error("session delete failed", map[string]any{
				"error": err.Error(),
			})
		}
		logger.Info("logout", map[string]any{
			"ip": c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.cookie)
	c.Status(http.StatusNoContent)
}

func (h *Handler) User(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    sess.UserID,
		"username":   sess.Username,
		"idp":        sess.Provider,
		"expires_at": sess.ExpiresAt,
	})
}

// writeError maps login errors onto HTTP responses.
func writeError(c *gin.Context, idpName string, err error) {
	var exErr *auth.IdentityExchangeError

	switch {
	case errors.Is(err, auth.ErrInvalidRedirect):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid redirect"})
		return
	case errors.As(err, &exErr):
		logger.Error("identity exchange failed", map[string]any{
			"idp":    idpName,
			"reason": exErr.Reason,
			"error":  err.Error(),
		})
		body := gin.H{"error": "authentication failed"}
		if exErr.Payload != nil {
			body["payload"] = exErr.Payload
		}
		c.JSON(http.StatusUnauthorized, body)
		return
	case errors.Is(err, resolver.ErrSubjectBound):
		c.JSON(http.StatusConflict, gin.H{"error": "identity already bound to another user"})
		return
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity provider"})
		return
	}

	logger.Error("login failed", map[string]any{
		"idp":   idpName,
		"error": err.Error(),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
