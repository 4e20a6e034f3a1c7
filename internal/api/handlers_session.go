package api

import (
	"net/http"
)

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// handleUnlock handles POST /api/unlock - open (or create) the wallet collection
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := s.automator.Unlock(r.Context(), req.Passphrase); err != nil {
		respondServiceError(w, r, err)
		return
	}

	wallets, err := s.automator.Wallets()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": true,
		"wallets":  wallets,
	})
}

// handleLock handles POST /api/lock - stop all automation and forget the passphrase
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.automator.Lock()
	respondJSON(w, http.StatusOK, map[string]bool{"unlocked": false})
}

// handleReset handles POST /api/reset - delete every wallet
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := parseJSONBody(r, &req); err != nil || !req.Confirm {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Reset requires {\"confirm\": true}", nil)
		return
	}

	if err := s.automator.Reset(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"reset": true})
}
