package resolver

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
// A single mutex serialises all operations, which gives the same
// uniqueness guarantees as the Postgres constraints.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]User             // by username
	providers map[string]IdentityProvider // by name
	bindings  map[string]IdPToUser        // by sub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]User),
		providers: make(map[string]IdentityProvider),
		bindings:  make(map[string]IdPToUser),
	}
}

func (s *MemoryStore) FindOrCreateUser(_ context.Context, username, idpName, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[username]; ok {
		if u.Email == "" && email != "" {
			u.Email = email
			s.users[username] = u
		}
		return cloneUser(u), nil
	}

	u := User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		IdPName:        idpName,
		AdditionalInfo: map[string]any{},
		CreatedAt:      time.Now().UTC(),
	}
	s.users[username] = u
	return cloneUser(u), nil
}

// SetAdditionalInfo replaces a user's additional info. Used to seed
// registered users.
func (s *MemoryStore) SetAdditionalInfo(username string, info map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.AdditionalInfo = maps.Clone(info)
		s.users[username] = u
	}
}

func (s *MemoryStore) FindProviderByName(_ context.Context, name string) (IdentityProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[name]
	if !ok {
		return IdentityProvider{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) CreateProvider(_ context.Context, p IdentityProvider) (IdentityProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.Name]; ok {
		return IdentityProvider{}, ErrConflict
	}
	p.ID = uuid.NewString()
	s.providers[p.Name] = p
	return p, nil
}

func (s *MemoryStore) FindBindingBySub(_ context.Context, sub string) (IdPToUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[sub]
	if !ok {
		return IdPToUser{}, ErrNotFound
	}
	return cloneBinding(b), nil
}

func (s *MemoryStore) UpsertBinding(_ context.Context, b IdPToUser) (IdPToUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[b.Sub]; ok {
		if existing.UserID != b.UserID {
			return IdPToUser{}, ErrSubjectBound
		}
		existing.ProviderID = b.ProviderID
		existing.ExtraInfo = maps.Clone(b.ExtraInfo)
		s.bindings[b.Sub] = existing
		return cloneBinding(existing), nil
	}

	b.ID = uuid.NewString()
	b.ExtraInfo = maps.Clone(b.ExtraInfo)
	s.bindings[b.Sub] = b
	return cloneBinding(b), nil
}

// Counts reports the number of stored providers and bindings.
func (s *MemoryStore) Counts() (providers, bindings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.providers), len(s.bindings)
}

func cloneUser(u User) User {
	u.AdditionalInfo = maps.Clone(u.AdditionalInfo)
	return u
}

func cloneBinding(b IdPToUser) IdPToUser {
	b.ExtraInfo = maps.Clone(b.ExtraInfo)
	return b
}
