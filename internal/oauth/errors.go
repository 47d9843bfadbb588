package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch means the callback state differs from the issued one.
	ErrStateMismatch = errors.New("state_mismatch")
	// ErrMissingPKCE means no pending flow exists for the callback: it
	// expired, was already consumed or the cookie is absent.
	ErrMissingPKCE = errors.New("missing_pkce")
	// ErrUnknownProvider is returned for a provider name with no client.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrNoRefreshToken is returned when a refresh is requested without a token.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// TokenExchangeError is a non-2xx reply from a token endpoint.
type TokenExchangeError struct {
	Provider string
	Status   int
	Body     string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed with %d: %s", e.Provider, e.Status, e.Body)
}
