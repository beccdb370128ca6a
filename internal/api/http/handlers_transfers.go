package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"lanshare/internal/domain"
	"lanshare/internal/usecase"
)

type peerPayload struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type createTransferRequest struct {
	Peer        peerPayload `json:"peer"`
	Paths       []string    `json:"paths"`
	Parallelism int         `json:"parallelism,omitempty"`
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.transferState.List())
	case http.MethodPost:
		s.handleCreateTransfer(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := s.sendFiles.Execute(r.Context(), usecase.SendFilesInput{
		Peer:        domain.PeerAddr{Address: req.Peer.Address, Port: req.Peer.Port},
		Paths:       req.Paths,
		Parallelism: req.Parallelism,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

func (s *Server) handleTransferByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/transfers/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not_found", "transfer not found")
		return
	}
	id := domain.SessionID(parts[0])

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		view, err := s.transferState.Get(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "transfer not found")
				return
			}
			writeUseCaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		if err := s.cancelTransfer.Execute(id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "transfer not found")
				return
			}
			writeUseCaseError(w, err)
			return
		}
		view, err := s.transferState.Get(id)
		if err != nil {
			writeJSON(w, http.StatusAccepted, map[string]string{"id": string(id)})
			return
		}
		writeJSON(w, http.StatusAccepted, view)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}
