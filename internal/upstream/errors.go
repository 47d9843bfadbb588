package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedPayload is wrapped when an upstream 2xx body cannot be decoded
// or lacks required fields.
var ErrMalformedPayload = errors.New("malformed upstream payload")

const maxErrorBody = 512

// ProviderAPIError is a non-2xx reply from a provider.
type ProviderAPIError struct {
	Provider string
	Status   int
	Body     string
}

func NewProviderAPIError(provider string, status int, body []byte) *ProviderAPIError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return &ProviderAPIError{Provider: provider, Status: status, Body: b}
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.Status, e.Body)
}

// TransportError wraps a network-level failure.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: http request: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *ProviderAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// Malformed wraps a validation failure of a decoded payload.
func Malformed(provider, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrMalformedPayload, fmt.Sprintf(format, args...))
}
