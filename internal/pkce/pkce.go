// Package pkce generates Proof Key for Code Exchange material (RFC 7636).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

const (
	verifierBytes = 32
	stateBytes    = 16
)

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pkce: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCodeVerifier returns a 43-character URL-safe verifier.
func GenerateCodeVerifier() (string, error) {
	return randomString(verifierBytes)
}

// GenerateCodeChallenge derives the S256 challenge for a verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState returns an opaque anti-CSRF value.
func GenerateState() (string, error) {
	return randomString(stateBytes)
}

// NewParams creates a fresh verifier, its challenge and a state value.
func NewParams() (model.PKCEParams, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return model.PKCEParams{}, err
	}
	state, err := GenerateState()
	if err != nil {
		return model.PKCEParams{}, err
	}
	return model.PKCEParams{
		CodeVerifier:  verifier,
		CodeChallenge: GenerateCodeChallenge(verifier),
		State:         state,
	}, nil
}
