// Package api implements the HTTP surface of the passport service.
//
// Routes:
//
//	GET  /score/{platform}            → fetch stats and score one platform
//	GET  /auth/{provider}/authorize   → start an OAuth flow
//	GET  /auth/{provider}/callback    → finish an OAuth flow, set session
//	POST /auth/{provider}/refresh     → renew the session access token
//	POST /auth/{provider}/logout      → drop the session
//	GET  /verify/roblox/code          → code a wallet must put in its bio
//	GET  /verify/roblox               → check the bio for that code
//	GET  /profiles/{wallet}           → read a passport profile
//	GET  /health, GET /metrics
//
// Every JSON response is {success, data} or {success:false, error}.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/conso-labs/conso-app-sub000/internal/fetcher"
	"github.com/conso-labs/conso-app-sub000/internal/metrics"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/oauth"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
	"github.com/conso-labs/conso-app-sub000/internal/scoring"
	"github.com/conso-labs/conso-app-sub000/internal/verify"
)

// ─── Upstream sources ────────────────────────────────────────────────────────

type YouTubeSource interface {
	GetStats(ctx context.Context, identifier string, opts fetcher.YouTubeOptions) (*model.YouTubeStats, error)
}

type TwitchSource interface {
	GetStats(ctx context.Context, login string) (*model.TwitchStats, error)
}

type RedditSource interface {
	GetStats(ctx context.Context, username string) (*model.RedditStats, error)
}

type DiscordSource interface {
	GetStats(ctx context.Context, userID string, opts fetcher.DiscordOptions) (*model.DiscordStats, error)
}

type TwitterSource interface {
	GetStats(ctx context.Context, accessToken string) (*model.TwitterStats, error)
}

// ─── Server ──────────────────────────────────────────────────────────────────

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	AppURL     string
	Calculator *scoring.Calculator
	YouTube    YouTubeSource
	Twitch     TwitchSource
	Reddit     RedditSource
	Discord    DiscordSource
	Roblox     verify.RobloxSource
	Twitter    TwitterSource
	OAuth      *oauth.Manager
	Sessions   *Sessions
	Verifier   *verify.Verifier
	Profiles   *profile.Service
	Metrics    *metrics.PassportMetrics
	// Readiness reports per-platform configuration problems for /health.
	Readiness func() map[string]error
}

// Server holds shared dependencies of the handlers.
type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.Calculator == nil {
		d.Calculator = scoring.NewCalculator(nil)
	}
	return &Server{Deps: d}
}

// Router mounts every route and wraps them in logging, recovery and CORS
// middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/score/{platform}", s.handleScore).Methods(http.MethodGet)

	r.HandleFunc("/auth/{provider}/authorize", s.handleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/callback", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/{provider}/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/verify/roblox/code", s.handleRobloxCode).Methods(http.MethodGet)
	r.HandleFunc("/verify/roblox", s.handleRobloxVerify).Methods(http.MethodGet)

	r.HandleFunc("/profiles/{wallet}", s.handleGetProfile).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{s.AppURL}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowCredentials(),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)),
	)(h)
	return handlers.CustomLoggingHandler(io.Discard, h, logRequest)
}

func logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	slog.Info("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration_ms", time.Since(p.TimeStamp).Milliseconds(),
	)
}

// ─── Health ──────────────────────────────────────────────────────────────────

type platformHealth struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	platforms := make(map[string]platformHealth)
	if s.Readiness != nil {
		for name, err := range s.Readiness() {
			ph := platformHealth{Ready: err == nil}
			if err != nil {
				ph.Error = err.Error()
			}
			platforms[name] = ph
		}
	}
	jsonOK(w, map[string]any{"status": "ok", "platforms": platforms})
}
