package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownProvider = errors.New("unknown identity provider")

// Registry holds all configured provider clients and allows lookup by
// name. It performs no auth logic itself.
type Registry struct {
	clients map[string]Client
}

// NewRegistry registers the given clients by lower-cased name.
// Provider names must be unique.
func NewRegistry(list ...Client) (*Registry, error) {
	m := make(map[string]Client, len(list))
	for _, c := range list {
		name := strings.ToLower(c.Name())
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("duplicate identity provider: %s", name)
		}
		m[name] = c
	}
	return &Registry{clients: m}, nil
}

// Get returns the client by name or ErrUnknownProvider.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return c, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
