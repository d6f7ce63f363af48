package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidmonro/fence/internal/logger"
)

// DiscoveredProviderDescription is stored on providers created because a
// verified assertion named an IdP the gateway had not seen before.
const DiscoveredProviderDescription = "IdP from foreign assertion"

// Mapper binds verified external identities to local users.
// It is the ONLY place where identity-to-user mapping logic lives.
type Mapper struct {
	store Store
}

func NewMapper(store Store) *Mapper {
	return &Mapper{store: store}
}

// Subject builds the composite external identifier stored as IdPToUser.Sub.
func Subject(providerName, externalSubject string) string {
	return providerName + "_" + externalSubject
}

// Bind upserts the (provider, subject) -> user binding. The caller must
// have verified the assertion; Bind trusts its inputs.
func (m *Mapper) Bind(
	ctx context.Context,
	user User,
	externalSubject string,
	providerName string,
	extraInfo map[string]any,
) (IdPToUser, error) {

	if user.ID == "" || externalSubject == "" || providerName == "" {
		return IdPToUser{}, errors.New("resolver: bind requires user, subject and provider")
	}

	idp, err := m.ensureProvider(ctx, providerName)
	if err != nil {
		return IdPToUser{}, err
	}

	binding := IdPToUser{
		Sub:        Subject(providerName, externalSubject),
		ProviderID: idp.ID,
		UserID:     user.ID,
		ExtraInfo:  extraInfo,
	}

	saved, err := m.store.UpsertBinding(ctx, binding)
	if errors.Is(err, ErrConflict) {
		// A concurrent first login inserted the same sub between our
		// read and write; the row now exists.
		saved, err = m.store.FindBindingBySub(ctx, binding.Sub)
		if err == nil && saved.UserID != user.ID {
			err = ErrSubjectBound
		}
	}
	if err != nil {
		return IdPToUser{}, fmt.Errorf("bind %s: %w", binding.Sub, err)
	}

	logger.Info("identity bound", map[string]any{
		"sub":      saved.Sub,
		"provider": providerName,
		"user_id":  user.ID,
	})
	return saved, nil
}

// ensureProvider is a get-or-create that tolerates a racing insert.
func (m *Mapper) ensureProvider(ctx context.Context, name string) (IdentityProvider, error) {
	idp, err := m.store.FindProviderByName(ctx, name)
	if err == nil {
		return idp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return IdentityProvider{}, fmt.Errorf("find provider %s: %w", name, err)
	}

	idp, err = m.store.CreateProvider(ctx, IdentityProvider{
		Name:        name,
		Description: DiscoveredProviderDescription,
	})
	if errors.Is(err, ErrConflict) {
		logger.Warn("provider created concurrently, re-reading", map[string]any{
			"provider": name,
		})
		idp, err = m.store.FindProviderByName(ctx, name)
	}
	if err != nil {
		return IdentityProvider{}, fmt.Errorf("create provider %s: %w", name, err)
	}

	logger.Info("identity provider registered", map[string]any{
		"provider": name,
		"id":       idp.ID,
	})
	return idp, nil
}
