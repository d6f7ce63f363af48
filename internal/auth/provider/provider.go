package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Client defines the contract every external identity provider must
// implement. Implementations return identity facts only and must not
// create users, bind identities or touch sessions.
type Client interface {
	// Name returns the provider identifier (e.g. "google", "keycloak").
	Name() string

	// AuthURL returns the authorization URL the user is redirected to.
	// State and PKCE parameters are provided by the caller.
	AuthURL(state string, codeChallenge string) string

	// Exchange trades the authorization code for the provider's view of
	// the user. Field names in the result are provider specific.
	Exchange(ctx context.Context, code string, codeVerifier string) (Claims, error)
}

// Claims is the field-name to value mapping returned by a code exchange.
type Claims map[string]any

// maxExactFloat is the largest integer a float64 holds without rounding.
const maxExactFloat = 1 << 53

// String returns the named field when it is a non-empty string. Integral
// numeric identifiers (GitHub-style ids) are rendered in decimal; fractional
// values and floats past the exact-integer range yield "".
func (c Claims) String(field string) string {
	switch v := c[field].(type) {
	case string:
		return v
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return ""
		}
		return v.String()
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > maxExactFloat {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// DecodeClaims parses a JSON object, keeping numbers as json.Number so
// large identifiers survive intact.
func DecodeClaims(data []byte) (Claims, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	claims := Claims{}
	if err := dec.Decode(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Without returns a copy of c minus the given keys.
func (c Claims) Without(keys ...string) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
