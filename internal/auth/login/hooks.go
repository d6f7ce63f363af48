package login

import (
	"context"

	"github.com/davidmonro/fence/internal/auth/provider"
	"github.com/davidmonro/fence/internal/auth/resolver"
)

// PostLoginHook runs after a successful callback. Hooks must leave
// rc.Audit populated.
type PostLoginHook interface {
	PostLogin(ctx context.Context, rc *RequestContext, idpName string, claims provider.Claims) error
}

// AuditHook is the default hook.
type AuditHook struct{}

func (AuditHook) PostLogin(_ context.Context, rc *RequestContext, idpName string, _ provider.Claims) error {
	audit := BuildAuditContext(*rc.User, idpName, rc.Session)
	rc.Audit = &audit
	return nil
}

// BindingHook also links the IdP subject to the user.
type BindingHook struct {
	Mapper *resolver.Mapper
}

func (h BindingHook) PostLogin(ctx context.Context, rc *RequestContext, idpName string, claims provider.Claims) error {
	if err := (AuditHook{}).PostLogin(ctx, rc, idpName, claims); err != nil {
		return err
	}
	_, err := h.Mapper.Bind(ctx, *rc.User, claims.String("sub"), idpName, claims.Without("sub"))
	return err
}
