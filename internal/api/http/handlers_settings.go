package apihttp

import (
	"encoding/json"
	"net/http"

	"lanshare/internal/domain"
)

func (s *Server) handleReceiverSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.ReceiverSettings())
	case http.MethodPut:
		var settings domain.ReceiverSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		if err := s.updateSettings.Execute(r.Context(), settings); err != nil {
			writeUseCaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.ReceiverSettings())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}
