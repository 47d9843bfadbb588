package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetProfile handles GET /profiles/{wallet}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Profiles.Get(r.Context(), mux.Vars(r)["wallet"])
	if err != nil {
		writeError(w, err, "Failed to load profile")
		return
	}
	jsonOK(w, p)
}
