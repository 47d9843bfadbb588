package api

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/oauth"
)

const (
	// RefreshMaxAge bounds the refresh token cookie.
	RefreshMaxAge = 30 * 24 * time.Hour
	// defaultAccessMaxAge applies when a provider omits expires_in.
	defaultAccessMaxAge = time.Hour
)

// Sessions seals OAuth material into HTTP-only cookies. The browser only
// ever holds encrypted and signed values.
type Sessions struct {
	codec  *securecookie.SecureCookie
	secure bool
	now    func() time.Time
}

// NewSessions builds the cookie codec. secure marks cookies HTTPS-only.
func NewSessions(hashKey, blockKey []byte, secure bool, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(RefreshMaxAge.Seconds()))
	return &Sessions{codec: codec, secure: secure, now: now}
}

func flowCookie(provider string) string    { return "conso_flow_" + provider }
func accessCookie(provider string) string  { return "conso_" + provider + "_access" }
func refreshCookie(provider string) string { return "conso_" + provider + "_refresh" }
func walletCookie(provider string) string  { return "conso_" + provider + "_wallet" }

// SetFlow stores the pending flow id for the callback.
func (s *Sessions) SetFlow(w http.ResponseWriter, provider, flowID string) error {
	return s.set(w, flowCookie(provider), flowID, oauth.PendingTTL)
}

// Flow returns the pending flow id, or "" when absent or tampered with.
func (s *Sessions) Flow(r *http.Request, provider string) string {
	v, _ := s.get(r, flowCookie(provider))
	return v
}

func (s *Sessions) ClearFlow(w http.ResponseWriter, provider string) {
	s.clear(w, flowCookie(provider))
}

// SetTokens writes the session cookies. The access cookie lives as long as
// the token; the refresh cookie for RefreshMaxAge.
func (s *Sessions) SetTokens(w http.ResponseWriter, provider string, t model.OAuthTokenSet) error {
	lifetime := t.Lifetime(s.now())
	if t.ExpiresAt.IsZero() {
		lifetime = defaultAccessMaxAge
	}
	if lifetime < time.Second {
		s.clear(w, accessCookie(provider))
	} else if err := s.set(w, accessCookie(provider), t.AccessToken, lifetime); err != nil {
		return err
	}
	if t.RefreshToken != "" {
		return s.set(w, refreshCookie(provider), t.RefreshToken, RefreshMaxAge)
	}
	return nil
}

// AccessToken returns the provider access token of the session.
func (s *Sessions) AccessToken(r *http.Request, provider string) (string, error) {
	return s.get(r, accessCookie(provider))
}

// RefreshToken returns the provider refresh token of the session.
func (s *Sessions) RefreshToken(r *http.Request, provider string) (string, error) {
	return s.get(r, refreshCookie(provider))
}

// SetWallet binds the session to the wallet that started the flow. An
// empty wallet removes any earlier binding.
func (s *Sessions) SetWallet(w http.ResponseWriter, provider, wallet string) error {
	if wallet == "" {
		s.clear(w, walletCookie(provider))
		return nil
	}
	return s.set(w, walletCookie(provider), wallet, RefreshMaxAge)
}

// Wallet returns the wallet bound to the provider session.
func (s *Sessions) Wallet(r *http.Request, provider string) (string, error) {
	return s.get(r, walletCookie(provider))
}

// Clear removes every session cookie of provider.
func (s *Sessions) Clear(w http.ResponseWriter, provider string) {
	s.clear(w, accessCookie(provider))
	s.clear(w, refreshCookie(provider))
	s.clear(w, walletCookie(provider))
}

func (s *Sessions) set(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Sessions) get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", errNoSession
	}
	var value string
	if err := s.codec.Decode(name, c.Value, &value); err != nil || value == "" {
		return "", errNoSession
	}
	return value, nil
}

func (s *Sessions) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
