package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DefaultMockUser = "test@example.com"
	DefaultField    = "email"
)

// Config holds process configuration. Scalars come from the environment,
// provider settings from the YAML file named by PROVIDERS_FILE.
type Config struct {
	AppPort     string `env:"APP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	BaseURL            string   `env:"BASE_URL" envDefault:"http://localhost:8080"`
	RedirectAllowlist  []string `env:"LOGIN_REDIRECT_WHITELIST" envSeparator:","`
	RegisterUsersOn    bool     `env:"REGISTER_USERS_ON" envDefault:"false"`
	RegistrationPath   string   `env:"REGISTRATION_PATH" envDefault:"/user/register"`
	DevLoginCookieName string   `env:"DEV_LOGIN_COOKIE_NAME" envDefault:"dev_login"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"true"`

	LoginRateLimit float64 `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
	LoginRateBurst int     `env:"LOGIN_RATE_BURST" envDefault:"10"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	DatabaseDSN   string `env:"DATABASE_DSN"`

	ProvidersFile string `env:"PROVIDERS_FILE" envDefault:"providers.yaml"`

	Providers map[string]Provider
	// LegacyMock holds MOCK_<IDP>_AUTH flags keyed by lower-case provider name.
	LegacyMock map[string]bool
}

// Provider is one entry of the openid_connect section.
type Provider struct {
	Type         string   `yaml:"type"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Issuer       string   `yaml:"issuer"`
	PublicURL    string   `yaml:"public_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"user_info_url"`
	Scopes       []string `yaml:"scopes"`

	Mock            bool   `yaml:"mock"`
	MockDefaultUser string `yaml:"mock_default_user"`
	UsernameField   string `yaml:"username_field"`
	EmailField      string `yaml:"email_field"`
	BindIdentity    bool   `yaml:"bind_identity"`
}

type providersFile struct {
	OpenIDConnect map[string]Provider `yaml:"openid_connect"`
}

// Load reads the environment and the providers file, then validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	providers, err := LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Providers = providers
	cfg.LegacyMock = legacyMockFlags(os.Environ())

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadProviders parses the openid_connect section of a YAML file. A missing
// file yields an empty provider set.
func LoadProviders(path string) (map[string]Provider, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Provider{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}

	providers := make(map[string]Provider, len(file.OpenIDConnect))
	for name, p := range file.OpenIDConnect {
		providers[strings.ToLower(name)] = p.withDefaults()
	}
	return providers, nil
}

func (p Provider) withDefaults() Provider {
	if p.MockDefaultUser == "" {
		p.MockDefaultUser = DefaultMockUser
	}
	if p.UsernameField == "" {
		p.UsernameField = DefaultField
	}
	if p.EmailField == "" {
		p.EmailField = DefaultField
	}
	return p
}

// legacyMockFlags collects every MOCK_<IDP>_AUTH variable in environ,
// whether or not <IDP> appears in the providers file. Older deployments
// toggle mock login this way instead of the YAML field.
func legacyMockFlags(environ []string) map[string]bool {
	flags := make(map[string]bool)
	for _, kv := range environ {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || len(key) <= len("MOCK__AUTH") ||
			!strings.HasPrefix(key, "MOCK_") || !strings.HasSuffix(key, "_AUTH") {
			continue
		}
		name := key[len("MOCK_") : len(key)-len("_AUTH")]
		enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		flags[strings.ToLower(name)] = enabled
	}
	return flags
}

// Validate rejects configurations that must never reach a running server.
func (c Config) Validate() error {
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("config: BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}

	if c.IsProduction() {
		if c.SessionSecret == "" {
			return errors.New("config: SESSION_SECRET is required in production")
		}
		for name := range c.Providers {
			if c.MockEnabled(name) {
				return fmt.Errorf("config: mock login enabled for %q in production", name)
			}
		}
		for name, enabled := range c.LegacyMock {
			if enabled {
				return fmt.Errorf("config: mock login enabled for %q in production", name)
			}
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// MockEnabled reports whether either the provider flag or the legacy flag
// turns on mock login for name.
func (c Config) MockEnabled(name string) bool {
	name = strings.ToLower(name)
	if p, ok := c.Providers[name]; ok && p.Mock {
		return true
	}
	return c.LegacyMock[name]
}

// Provider returns the settings for name with defaults applied. Unknown
// names get an empty provider with defaults so mock lookups stay total.
func (c Config) Provider(name string) Provider {
	return c.Providers[strings.ToLower(name)].withDefaults()
}
