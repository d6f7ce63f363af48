package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/auth/resolver"
	"github.com/davidmonro/fence/internal/config"
	"github.com/davidmonro/fence/internal/logger"
	"github.com/davidmonro/fence/internal/session"
)

// Providers looks up a configured IdP client. *provider.Registry
// satisfies it.
type Providers interface {
	Get(name string) (provider.Client, error)
}

// RedirectValidator gates user-supplied post-login targets.
type RedirectValidator interface {
	Validate(raw string) error
}

// Recorder receives login metrics. A nil Recorder is allowed.
type Recorder interface {
	LoginCompleted(idpName string, mock bool)
	CallbackError(idpName, kind string)
	ObserveExchange(idpName string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) LoginCompleted(string, bool)           {}
func (noopRecorder) CallbackError(string, string)          {}
func (noopRecorder) ObserveExchange(string, time.Duration) {}

// Service drives one IdP login end to end: starting the round-trip,
// interpreting the callback and completing the session.
type Service struct {
	cfg       config.Config
	providers Providers
	validator RedirectValidator
	users     resolver.Users
	mock      *MockResolver
	hooks     map[string]PostLoginHook
	metrics   Recorder
}

type Option func(*Service)

// WithHook replaces the post-login hook for one provider.
func WithHook(idpName string, hook PostLoginHook) Option {
	return func(s *Service) {
		s.hooks[strings.ToLower(idpName)] = hook
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func NewService(cfg config.Config, providers Providers, validator RedirectValidator, users resolver.Users, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		providers: providers,
		validator: validator,
		users:     users,
		mock:      NewMockResolver(cfg),
		hooks:     map[string]PostLoginHook{},
		metrics:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates and stores the requested redirect, then either completes
// a mock login immediately or sends the browser to the IdP.
func (s *Service) Start(ctx context.Context, rc *RequestContext, req LoginRequest, params AuthParams) (Response, error) {
	if err := s.validator.Validate(req.Redirect); err != nil {
		s.metrics.CallbackError(req.IdPName, "invalid_redirect")
		return Response{}, err
	}
	if req.Redirect != "" {
		rc.Session.Set(session.KeyRedirect, req.Redirect)
	}

	mock, username := s.mock.Resolve(req.IdPName, rc.Cookies)
	req.Mock = mock
	if req.Mock {
		logger.Warn("mock login", map[string]any{
			"idp":      req.IdPName,
			"username": username,
		})

		resp, err := s.completeLogin(ctx, rc, username, req.IdPName, "")
		if err != nil {
			return Response{}, err
		}
		audit := BuildAuditContext(*rc.User, req.IdPName, rc.Session)
		rc.Audit = &audit
		s.metrics.LoginCompleted(req.IdPName, true)
		return resp, nil
	}

	client, err := s.providers.Get(req.IdPName)
	if err != nil {
		return Response{}, err
	}
	return Redirect(client.AuthURL(params.State, params.CodeChallenge)), nil
}

// completeLogin records the user and picks where the browser goes next.
func (s *Service) completeLogin(ctx context.Context, rc *RequestContext, username, idpName, email string) (Response, error) {
	if username == "" {
		return Response{}, errors.New("login requires a username")
	}

	user, err := s.users.FindOrCreateUser(ctx, username, idpName, email)
	if err != nil {
		return Response{}, fmt.Errorf("record login for %q: %w", username, err)
	}
	rc.User = &user

	logger.Info("login completed", map[string]any{
		"username": user.Username,
		"user_id":  user.ID,
		"idp":      idpName,
	})

	return s.redirectAfterLogin(rc, user), nil
}

// redirectAfterLogin sends unregistered users to registration when that is
// switched on, otherwise to the saved redirect (consuming it), otherwise
// answers with the username. The registration path keeps the saved redirect
// for after registration.
func (s *Service) redirectAfterLogin(rc *RequestContext, user resolver.User) Response {
	if s.cfg.RegisterUsersOn && !user.Registered() {
		return Redirect(strings.TrimRight(s.cfg.BaseURL, "/") + s.cfg.RegistrationPath)
	}
	if target := rc.Session.Get(session.KeyRedirect); target != "" {
		// One redirect per login; a later login must not inherit it.
		rc.Session.Delete(session.KeyRedirect)
		return Redirect(target)
	}
	return JSON(map[string]any{"username": user.Username})
}

func (s *Service) hook(idpName string) PostLoginHook {
	if h, ok := s.hooks[strings.ToLower(idpName)]; ok {
		return h
	}
	return AuditHook{}
}
