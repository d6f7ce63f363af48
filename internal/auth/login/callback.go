package login

import (
	"context"
	"fmt"
	"time"

	"github.com/davidmonro/fence/internal/auth"
	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/logger"
	"github.com/davidmonro/fence/internal/session"
)

// CallbackResult is what the IdP sent back: either an error the browser
// should carry back to the client, or a verified identity.
type CallbackResult struct {
	IdPError []param
	Identity *auth.Identity
	Claims   provider.Claims
}

// Complete handles the IdP's return. rawQuery is the callback's raw query
// string so parameter order survives forwarding.
func (s *Service) Complete(ctx context.Context, rc *RequestContext, idpName, rawQuery, codeVerifier string) (Response, error) {
	client, err := s.providers.Get(idpName)
	if err != nil {
		return Response{}, err
	}

	result, err := s.interpret(ctx, client, rawQuery, codeVerifier)
	if err != nil {
		s.metrics.CallbackError(idpName, "exchange")
		return Response{}, err
	}

	if result.IdPError != nil {
		s.metrics.CallbackError(idpName, "idp_error")
		return s.forwardIdPError(rc, result.IdPError), nil
	}

	id := result.Identity
	resp, err := s.completeLogin(ctx, rc, id.Username, idpName, id.Email)
	if err != nil {
		return Response{}, err
	}

	if err := s.hook(idpName).PostLogin(ctx, rc, idpName, result.Claims); err != nil {
		s.metrics.CallbackError(idpName, "post_login")
		return Response{}, err
	}

	s.metrics.LoginCompleted(idpName, false)
	return resp, nil
}

// interpret classifies the callback and, on the success branch, redeems
// the code for the configured username and email claims.
func (s *Service) interpret(ctx context.Context, client provider.Client, rawQuery, codeVerifier string) (CallbackResult, error) {
	params := parseParams(rawQuery)
	if first(params, "error") != "" {
		return CallbackResult{IdPError: params}, nil
	}

	name := client.Name()
	code := first(params, "code")
	if code == "" {
		return CallbackResult{}, &auth.IdentityExchangeError{
			Provider: name,
			Reason:   "callback carried no authorization code",
		}
	}

	start := time.Now()
	claims, err := client.Exchange(ctx, code, codeVerifier)
	s.metrics.ObserveExchange(name, time.Since(start))
	if err != nil {
		return CallbackResult{}, &auth.IdentityExchangeError{
			Provider: name,
			Reason:   "code exchange failed",
			Err:      err,
		}
	}

	p := s.cfg.Provider(name)
	username := claims.String(p.UsernameField)
	if username == "" {
		logger.Error("identity payload missing username", map[string]any{
			"idp":   name,
			"field": p.UsernameField,
		})
		return CallbackResult{}, &auth.IdentityExchangeError{
			Provider: name,
			Reason:   fmt.Sprintf("identity payload has no %q claim", p.UsernameField),
			Payload:  claims,
		}
	}

	return CallbackResult{
		Identity: &auth.Identity{
			Provider: name,
			Username: username,
			Email:    claims.String(p.EmailField),
			Payload:  claims,
		},
		Claims: claims,
	}, nil
}

// forwardIdPError sends the browser back to the client with the IdP's
// error parameters appended. Parameters saved in the original redirect
// come first. An embedded redirect_uri becomes the destination when it
// passes the allow-list; a repeated key resolves to its last value.
func (s *Service) forwardIdPError(rc *RequestContext, received []param) Response {
	target := rc.Session.Get(session.KeyRedirect)
	if target == "" {
		target = s.cfg.BaseURL
	}

	_, rawQuery := splitTarget(target)
	stored := parseParams(rawQuery)
	if uri := last(stored, "redirect_uri"); uri != "" {
		if err := s.validator.Validate(uri); err != nil {
			logger.Warn("ignoring untrusted redirect_uri", map[string]any{
				"error": err.Error(),
			})
		} else {
			target = uri
		}
	}

	merged := make([]param, 0, len(stored)+len(received))
	merged = append(merged, stored...)
	merged = append(merged, received...)

	base, _ := splitTarget(target)
	logger.Info("forwarding idp error", map[string]any{
		"error":  first(received, "error"),
		"target": base,
	})
	return Redirect(base + "?" + encodeParams(merged))
}
