package resolver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConflict is returned by stores when an insert hits a uniqueness
	// constraint. Callers re-read the existing row instead of failing.
	ErrConflict = errors.New("resolver: uniqueness conflict")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("resolver: not found")
	// ErrSubjectBound means the external subject is already bound to a
	// different local user.
	ErrSubjectBound = errors.New("resolver: subject bound to another user")
)

// RegistrationInfoKey marks a completed registration in User.AdditionalInfo.
const RegistrationInfoKey = "registration_info"

// User is the local account an external identity resolves to.
type User struct {
	ID             string
	Username       string
	Email          string
	IdPName        string
	AdditionalInfo map[string]any
	CreatedAt      time.Time
}

// Registered reports whether the user carries registration metadata.
func (u User) Registered() bool {
	v, ok := u.AdditionalInfo[RegistrationInfoKey]
	if !ok || v == nil {
		return false
	}
	if m, ok := v.(map[string]any); ok {
		return len(m) > 0
	}
	return true
}

// IdentityProvider is a durable record of an IdP, keyed by unique Name.
type IdentityProvider struct {
	ID          string
	Name        string
	Description string
}

// IdPToUser binds one external subject to one local user.
// Sub is "{provider}_{subject}" and is unique.
type IdPToUser struct {
	ID         string
	Sub        string
	ProviderID string
	UserID     string
	ExtraInfo  map[string]any
}

// Users is the local-user collaborator used by the login sequence.
type Users interface {
	// FindOrCreateUser returns the user named username, creating it when
	// absent. It fails only on storage faults.
	FindOrCreateUser(ctx context.Context, username, idpName, email string) (User, error)
}

// Store persists providers and identity bindings. Every write commits on
// its own; creates return ErrConflict on a uniqueness violation.
type Store interface {
	Users

	FindProviderByName(ctx context.Context, name string) (IdentityProvider, error)
	CreateProvider(ctx context.Context, p IdentityProvider) (IdentityProvider, error)

	FindBindingBySub(ctx context.Context, sub string) (IdPToUser, error)
	// UpsertBinding inserts b or, when b.Sub exists for the same user,
	// refreshes its provider and extra info. A sub held by another user
	// returns ErrSubjectBound.
	UpsertBinding(ctx context.Context, b IdPToUser) (IdPToUser, error)
}
