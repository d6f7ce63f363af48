package redirect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/davidmonro/fence/internal/auth"
)

// Validator checks post-login redirect targets against an allow-list of
// hosts. The host of the gateway's own base URL is always allowed.
type Validator struct {
	hosts    map[string]struct{}
	suffixes []string
}

// NewValidator builds a validator from the gateway base URL and extra
// allowed entries. An entry is a bare host ("app.example"), a wildcard
// ("*.example.org") or a full URL whose host is taken.
func NewValidator(baseURL string, allowed []string) (*Validator, error) {
	v := &Validator{hosts: make(map[string]struct{})}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("redirect: invalid base url %q", baseURL)
	}
	v.hosts[strings.ToLower(base.Host)] = struct{}{}

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
			continue
		case strings.HasPrefix(entry, "*."):
			v.suffixes = append(v.suffixes, entry[1:])
		case strings.Contains(entry, "://"):
			u, err := url.Parse(entry)
			if err != nil || u.Host == "" {
				return nil, fmt.Errorf("redirect: invalid allow-list entry %q", entry)
			}
			v.hosts[u.Host] = struct{}{}
		default:
			v.hosts[entry] = struct{}{}
		}
	}
	return v, nil
}

// Validate returns nil for an empty target or an allowed one. Anything else
// wraps auth.ErrInvalidRedirect.
func (v *Validator) Validate(raw string) error {
	if raw == "" {
		return nil
	}

	if strings.ContainsAny(raw, "\\\r\n\t") {
		return reject(raw, "illegal characters")
	}
	if strings.HasPrefix(raw, "//") {
		return reject(raw, "protocol-relative url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return reject(raw, "unparseable url")
	}

	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(u.Path, "/") {
			return reject(raw, "relative redirect must be an absolute path")
		}
		return nil
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return reject(raw, "unsupported scheme")
	}
	if u.User != nil {
		return reject(raw, "userinfo not allowed")
	}
	if !v.hostAllowed(strings.ToLower(u.Host)) {
		return reject(raw, "host not allowed")
	}
	return nil
}

func (v *Validator) hostAllowed(host string) bool {
	if _, ok := v.hosts[host]; ok {
		return true
	}
	hostname := host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		hostname = host[:i]
	}
	if _, ok := v.hosts[hostname]; ok {
		return true
	}
	for _, suffix := range v.suffixes {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

func reject(raw, reason string) error {
	return fmt.Errorf("%w: %s: %q", auth.ErrInvalidRedirect, reason, raw)
}
