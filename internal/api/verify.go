package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
	"github.com/conso-labs/conso-app-sub000/internal/verify"
)

// handleRobloxCode handles GET /verify/roblox/code?wallet=
func (s *Server) handleRobloxCode(w http.ResponseWriter, r *http.Request) {
	wallet, err := profile.NormalizeWallet(r.URL.Query().Get("wallet"))
	if err != nil {
		jsonError(w, "Wallet is required", http.StatusBadRequest)
		return
	}
	code, err := s.Verifier.Code(wallet)
	if err != nil {
		writeError(w, err, "Failed to issue verification code")
		return
	}
	jsonOK(w, map[string]string{"code": code})
}

// handleRobloxVerify handles GET /verify/roblox?username=&wallet=. A match
// records the Roblox user id on the wallet's profile so later scores of that
// user may be credited to it.
func (s *Server) handleRobloxVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := strings.TrimSpace(q.Get("username"))
	if username == "" {
		jsonError(w, "Username is required", http.StatusBadRequest)
		return
	}
	wallet, err := profile.NormalizeWallet(q.Get("wallet"))
	if err != nil {
		jsonError(w, "Wallet is required", http.StatusBadRequest)
		return
	}

	res, err := s.Verifier.Verify(r.Context(), username, wallet)
	if errors.Is(err, verify.ErrUserNotFound) {
		jsonError(w, "Roblox user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err, "Failed to verify Roblox account")
		return
	}
	if res.Verified && s.Profiles != nil {
		account := strconv.FormatInt(res.Profile.UserID, 10)
		if _, err := s.Profiles.MarkVerified(r.Context(), wallet, model.PlatformRoblox, account); err != nil {
			writeError(w, err, "Failed to record verification")
			return
		}
	}
	jsonOK(w, res)
}
