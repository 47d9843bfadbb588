package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/conso-labs/conso-app-sub000/internal/oauth"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
)

// handleAuthorize handles GET /auth/{provider}/authorize
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	// the wallet to credit is bound to the flow and later to the session
	wallet := r.URL.Query().Get("wallet")
	if wallet != "" {
		var err error
		if wallet, err = profile.NormalizeWallet(wallet); err != nil {
			writeError(w, err, "Failed to start authorization")
			return
		}
	}
	flowID, authURL, err := s.OAuth.Begin(r.Context(), provider, wallet)
	if errors.Is(err, oauth.ErrUnknownProvider) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err, "Failed to start authorization")
		return
	}
	if err := s.Sessions.SetFlow(w, provider, flowID); err != nil {
		writeError(w, err, "Failed to start authorization")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback handles GET /auth/{provider}/callback. Every outcome
// redirects back to the app.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()
	flowID := s.Sessions.Flow(r, provider)
	s.Sessions.ClearFlow(w, provider)

	fail := func(reason string) {
		redirectToApp(w, r, s.AppURL, url.Values{"error": {reason}, "provider": {provider}})
	}

	// the user denied consent at the provider
	if e := q.Get("error"); e != "" {
		slog.Info("oauth consent denied", "provider", provider, "reason", e)
		fail(e)
		return
	}

	tokens, flow, err := s.OAuth.Complete(r.Context(), provider, flowID, q.Get("state"), q.Get("code"))
	if err != nil {
		slog.Warn("oauth callback failed", "provider", provider, "err", err)
		fail(callbackReason(err))
		return
	}
	if err := s.Sessions.SetTokens(w, provider, tokens); err != nil {
		slog.Error("set session cookies failed", "provider", provider, "err", err)
		fail("session_failed")
		return
	}
	if err := s.Sessions.SetWallet(w, provider, flow.Subject); err != nil {
		slog.Error("set wallet cookie failed", "provider", provider, "err", err)
		fail("session_failed")
		return
	}
	redirectToApp(w, r, s.AppURL, url.Values{"auth": {"success"}, "provider": {provider}})
}

func callbackReason(err error) string {
	var exErr *oauth.TokenExchangeError
	switch {
	case errors.Is(err, oauth.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, oauth.ErrMissingPKCE):
		return "missing_pkce"
	case errors.Is(err, oauth.ErrMissingCode):
		return "missing_code"
	case errors.Is(err, oauth.ErrUnknownProvider):
		return "unknown_provider"
	case errors.As(err, &exErr):
		return "token_exchange_failed"
	}
	return "callback_failed"
}

// handleRefresh handles POST /auth/{provider}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if _, err := s.OAuth.Client(provider); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	refresh, err := s.Sessions.RefreshToken(r, provider)
	if err != nil {
		jsonError(w, "no refresh token, reconnect your account", http.StatusUnauthorized)
		return
	}

	tokens, err := s.OAuth.Refresh(r.Context(), provider, refresh)
	var exErr *oauth.TokenExchangeError
	if errors.As(err, &exErr) {
		s.Sessions.Clear(w, provider)
		jsonError(w, "refresh rejected, reconnect your account", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err, "Failed to refresh token")
		return
	}
	if err := s.Sessions.SetTokens(w, provider, tokens); err != nil {
		writeError(w, err, "Failed to refresh token")
		return
	}
	data := map[string]any{"provider": provider}
	if !tokens.ExpiresAt.IsZero() {
		data["expires_at"] = tokens.ExpiresAt.UTC().Format(time.RFC3339)
	}
	jsonOK(w, data)
}

// handleLogout handles POST /auth/{provider}/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	s.Sessions.Clear(w, provider)
	jsonOK(w, map[string]string{"provider": provider})
}
