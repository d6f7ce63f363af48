package login

import (
	"github.com/davidmonro/fence/internal/auth/resolver"
	"github.com/davidmonro/fence/internal/session"
)

// AuditContext describes a completed login for the audit log.
type AuditContext struct {
	Username string `json:"username"`
	UserID   string `json:"sub"`
	IdPName  string `json:"idp"`
	FenceIdP string `json:"fence_idp,omitempty"`
	ShibIdP  string `json:"shib_idp,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// BuildAuditContext assembles the audit record from the authenticated
// user and the session markers.
func BuildAuditContext(user resolver.User, idpName string, values SessionValues) AuditContext {
	return AuditContext{
		Username: user.Username,
		UserID:   user.ID,
		IdPName:  idpName,
		FenceIdP: values.Get(session.KeyFenceIdP),
		ShibIdP:  values.Get(session.KeyShibIdP),
		ClientID: values.Get(session.KeyClientID),
	}
}

// Fields renders the record for structured logging.
func (a AuditContext) Fields() map[string]any {
	return map[string]any{
		"username":  a.Username,
		"sub":       a.UserID,
		"idp":       a.IdPName,
		"fence_idp": a.FenceIdP,
		"shib_idp":  a.ShibIdP,
		"client_id": a.ClientID,
	}
}
