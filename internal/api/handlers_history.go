package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/slot-automator/internal/types"
)

// handleHistory handles GET /api/history - newest first, optionally filtered
// by ?walletId= and ?verification= and capped by ?limit=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	walletID := query.Get("walletId")
	verification := types.VerificationState(query.Get("verification"))

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records := s.automator.History()
	filtered := make([]types.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if walletID != "" && rec.WalletID != walletID {
			continue
		}
		if verification != "" && rec.Verification != verification {
			continue
		}
		filtered = append(filtered, rec)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": filtered,
		"count":        len(filtered),
	})
}

// handleVerify handles POST /api/history/{hash}/verify - check the outcome now
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	state, err := s.automator.Verify(r.Context(), hash)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hash":         hash,
		"verification": state,
	})
}
