package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/fetcher"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
)

// errNoSession is returned when an OAuth-gated route has no usable session.
var errNoSession = errors.New("not authenticated")

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

// writeError maps domain errors onto the response envelope. Upstream and
// unexpected failures are logged and answered with fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var cfgErr *config.ConfigurationError
	var verr *profile.ValidationError
	switch {
	case errors.As(err, &cfgErr):
		slog.Error("missing configuration", "vars", cfgErr.Vars)
		jsonError(w, cfgErr.Error(), http.StatusInternalServerError)
	case errors.Is(err, fetcher.ErrInvalidIdentifier):
		jsonError(w, "invalid identifier", http.StatusBadRequest)
	case errors.Is(err, profile.ErrInvalidWallet):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &verr):
		jsonError(w, verr.Msg, http.StatusBadRequest)
	case errors.Is(err, profile.ErrNotOwner):
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, profile.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errNoSession):
		jsonError(w, err.Error(), http.StatusUnauthorized)
	default:
		slog.Error(fallback, "err", err)
		jsonError(w, fallback, http.StatusInternalServerError)
	}
}

// redirectToApp sends the browser back to the web app with params.
func redirectToApp(w http.ResponseWriter, r *http.Request, appURL string, params url.Values) {
	http.Redirect(w, r, appURL+"?"+params.Encode(), http.StatusFound)
}
