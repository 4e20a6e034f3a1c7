package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleListWallets handles GET /api/wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.automator.Wallets()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

// handleCreateWallet handles POST /api/wallets - generate a new game wallet
func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	wallet, err := s.automator.CreateWallet(r.Context(), req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

// handleGetWallet handles GET /api/wallets/{id}
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.automator.Wallet(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// handleDeleteWallet handles DELETE /api/wallets/{id}
func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.automator.DeleteWallet(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": true,
		"id":      id,
	})
}

// handleExportKey handles POST /api/wallets/{id}/export. The passphrase must
// be supplied again even while unlocked.
func (s *Server) handleExportKey(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	id := mux.Vars(r)["id"]
	key, err := s.automator.ExportKey(id, req.Passphrase)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, map[string]string{
		"id":         id,
		"privateKey": key,
	})
}
