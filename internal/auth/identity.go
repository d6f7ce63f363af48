package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidRedirect marks a caller-supplied post-login redirect that is not
// on the allow-list. No redirect is issued when it is returned.
var ErrInvalidRedirect = errors.New("invalid redirect")

// Identity is what a provider asserted about the user after a successful
// code exchange. Payload keeps every field the provider returned.
type Identity struct {
	Provider string
	Username string
	Email    string
	Payload  map[string]any
}

// IdentityExchangeError is returned when the code exchange fails or the
// provider payload lacks the configured username field. The payload is kept
// for diagnostics and is never defaulted.
type IdentityExchangeError struct {
	Provider string
	Reason   string
	Payload  map[string]any
	Err      error
}

func (e *IdentityExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity exchange with %s failed: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("identity exchange with %s failed: %s", e.Provider, e.Reason)
}

func (e *IdentityExchangeError) Unwrap() error {
	return e.Err
}
