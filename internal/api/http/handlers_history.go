package apihttp

import (
	"net/http"

	"lanshare/internal/domain"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.historyRepo == nil {
		writeJSON(w, http.StatusOK, []domain.TransferRecord{})
		return
	}

	limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	records, err := s.getHistory.Execute(r.Context(), limit)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	if records == nil {
		records = []domain.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
