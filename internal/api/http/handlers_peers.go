package apihttp

import (
	"net/http"

	"lanshare/internal/domain"
)

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.peers == nil {
		writeJSON(w, http.StatusOK, []domain.PeerRecord{})
		return
	}
	writeJSON(w, http.StatusOK, s.listPeers.Execute())
}
