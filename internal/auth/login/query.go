package login

import (
	"net/url"
	"strings"
)

// param is one query pair. Order and duplicates matter when forwarding
// IdP errors, so url.Values is not enough.
type param struct {
	key, value string
}

// parseParams splits a raw query keeping order, duplicates and blank
// values. Pairs that fail to unescape are kept verbatim.
func parseParams(raw string) []param {
	var out []param
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out = append(out, param{key: unescape(k), value: unescape(v)})
	}
	return out
}

func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

func encodeParams(params []param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// first returns the first value for key.
func first(params []param, key string) string {
	for _, p := range params {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// last returns the last value for key.
func last(params []param, key string) string {
	v := ""
	for _, p := range params {
		if p.key == key {
			v = p.value
		}
	}
	return v
}

// splitTarget separates a URL into the part before '?' and its raw query
// without any fragment.
func splitTarget(target string) (string, string) {
	base, query, _ := strings.Cut(target, "?")
	query, _, _ = strings.Cut(query, "#")
	return base, query
}
