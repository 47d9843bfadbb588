package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/conso-labs/conso-app-sub000/internal/fetcher"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

// fetchFunc returns a platform stats pointer, or a nil pointer wrapped in
// any when the identity does not exist.
type fetchFunc func(ctx context.Context) (any, error)

// handleScore handles GET /score/{platform}
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	platform, err := model.ParsePlatform(mux.Vars(r)["platform"])
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	fetch, session, msg := s.fetchFor(platform, r)
	if msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	stats, err := fetch(r.Context())
	if session != "" && upstream.StatusOf(err) == http.StatusUnauthorized {
		jsonError(w, "session expired, reconnect your account", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err, fmt.Sprintf("Failed to fetch %s data", platform))
		return
	}
	if stats == nil {
		jsonError(w, fmt.Sprintf("%s account not found", platform), http.StatusNotFound)
		return
	}

	_, result, err := s.Calculator.Calculate(stats)
	if err != nil {
		writeError(w, err, "Failed to compute score")
		return
	}
	s.Metrics.ObserveScore(string(platform), result.Rating, result.TotalScore)

	data := map[string]any{
		string(platform) + "_stats": stats,
		string(platform) + "_score": result,
	}
	if raw := r.URL.Query().Get("wallet"); raw != "" && s.Profiles != nil {
		wallet, err := profile.NormalizeWallet(raw)
		if err != nil {
			writeError(w, err, "Failed to update profile")
			return
		}
		if err := s.checkOwner(r, platform, session, wallet, stats); err != nil {
			writeError(w, err, "Failed to update profile")
			return
		}
		p, err := s.Profiles.ApplyScore(r.Context(), wallet, platform, stats, result)
		if err != nil {
			writeError(w, err, "Failed to update profile")
			return
		}
		data["profile"] = p
	}
	jsonOK(w, data)
}

// checkOwner allows crediting wallet only with proof that it owns the
// scored account: an OAuth session started for that wallet, or a recorded
// Roblox bio-code verification of the same user id. Accounts looked up by
// public identifier carry no proof.
func (s *Server) checkOwner(r *http.Request, platform model.Platform, session, wallet string, stats any) error {
	if session != "" {
		bound, err := s.Sessions.Wallet(r, session)
		if err != nil || bound != wallet {
			return profile.ErrNotOwner
		}
		return nil
	}
	if st, ok := stats.(*model.RobloxStats); ok {
		verified, err := s.Profiles.IsVerified(r.Context(), wallet, platform, strconv.FormatInt(st.UserID, 10))
		if err != nil {
			return err
		}
		if !verified {
			return profile.ErrNotOwner
		}
		return nil
	}
	return profile.ErrNotOwner
}

// fetchFor picks the fetcher and identifier for platform. session names the
// OAuth provider whose session the fetch uses, if any; msg is a 400 message
// for a missing identifier.
func (s *Server) fetchFor(platform model.Platform, r *http.Request) (fetch fetchFunc, session string, msg string) {
	q := r.URL.Query()
	param := func(names ...string) string {
		for _, n := range names {
			if v := strings.TrimSpace(q.Get(n)); v != "" {
				return v
			}
		}
		return ""
	}
	token := func(provider string) (string, error) {
		return s.Sessions.AccessToken(r, provider)
	}

	switch platform {
	case model.PlatformYouTube:
		if q.Get("mine") == "true" {
			return func(ctx context.Context) (any, error) {
				tok, err := token("google")
				if err != nil {
					return nil, err
				}
				return nilable(s.YouTube.GetStats(ctx, "", fetcher.YouTubeOptions{AccessToken: tok, Mine: true}))
			}, "google", ""
		}
		id := param("channel", "channelId", "handle")
		if id == "" {
			return nil, "", "Channel ID or handle is required"
		}
		return func(ctx context.Context) (any, error) {
			return nilable(s.YouTube.GetStats(ctx, id, fetcher.YouTubeOptions{}))
		}, "", ""

	case model.PlatformTwitch:
		login := param("username", "login")
		if login == "" {
			return nil, "", "Username is required"
		}
		return func(ctx context.Context) (any, error) {
			return nilable(s.Twitch.GetStats(ctx, login))
		}, "", ""

	case model.PlatformReddit:
		name := param("username")
		if name == "" {
			return nil, "", "Username is required"
		}
		return func(ctx context.Context) (any, error) {
			return nilable(s.Reddit.GetStats(ctx, name))
		}, "", ""

	case model.PlatformDiscord:
		opts := fetcher.DiscordOptions{GuildID: param("guild_id", "guildId")}
		if q.Get("me") == "true" {
			return func(ctx context.Context) (any, error) {
				tok, err := token("discord")
				if err != nil {
					return nil, err
				}
				opts.AccessToken = tok
				return nilable(s.Discord.GetStats(ctx, "", opts))
			}, "discord", ""
		}
		id := param("user_id", "userId")
		if id == "" {
			return nil, "", "User ID is required"
		}
		return func(ctx context.Context) (any, error) {
			return nilable(s.Discord.GetStats(ctx, id, opts))
		}, "", ""

	case model.PlatformRoblox:
		name := param("username")
		if name == "" {
			return nil, "", "Username is required"
		}
		return func(ctx context.Context) (any, error) {
			return nilable(s.Roblox.GetStats(ctx, name))
		}, "", ""

	case model.PlatformTwitter:
		return func(ctx context.Context) (any, error) {
			tok, err := token("twitter")
			if err != nil {
				return nil, err
			}
			return nilable(s.Twitter.GetStats(ctx, tok))
		}, "twitter", ""
	}
	return nil, "", fmt.Sprintf("unsupported platform %q", platform)
}

// nilable keeps a nil stats pointer from turning into a non-nil interface.
func nilable[T any](st *T, err error) (any, error) {
	if err != nil || st == nil {
		return nil, err
	}
	return st, nil
}
