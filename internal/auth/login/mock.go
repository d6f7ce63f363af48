package login

import (
	"github.com/davidmonro/fence/internal/config"
)

// MockResolver decides whether a login bypasses the real IdP. It only
// ever returns true when configuration explicitly enables mock login for
// the provider; configuration loading refuses that in production.
type MockResolver struct {
	cfg config.Config
}

func NewMockResolver(cfg config.Config) *MockResolver {
	return &MockResolver{cfg: cfg}
}

// Resolve returns whether mock login applies and the synthetic username.
// The dev-login cookie wins over the configured default user.
func (m *MockResolver) Resolve(idpName string, cookies map[string]string) (bool, string) {
	if !m.cfg.MockEnabled(idpName) {
		return false, ""
	}
	if name := m.cfg.DevLoginCookieName; name != "" {
		if username := cookies[name]; username != "" {
			return true, username
		}
	}
	return true, m.cfg.Provider(idpName).MockDefaultUser
}
