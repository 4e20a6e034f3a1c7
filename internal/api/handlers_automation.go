package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/types"
)

type automationRequest struct {
	Rate       int             `json:"rate"`
	BetSize    decimal.Decimal `json:"betSize"`
	TargetGame string          `json:"targetGame,omitempty"`
}

type automationResponse struct {
	WalletID string                 `json:"walletId"`
	Config   types.AutomationConfig `json:"config"`
	Interval string                 `json:"interval"`
	Cost     types.Cost             `json:"cost"`
}

func newAutomationResponse(walletID string, cfg types.AutomationConfig) automationResponse {
	return automationResponse{
		WalletID: walletID,
		Config:   cfg,
		Interval: cfg.Interval().String(),
		Cost:     types.CalculateCost(cfg.Rate, cfg.BetSize),
	}
}

// handleGetAutomation handles GET /api/wallets/{id}/automation
func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := s.automator.Automation(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAutomationResponse(id, cfg))
}

// handleUpdateAutomation handles PUT /api/wallets/{id}/automation
func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	id := mux.Vars(r)["id"]
	cfg, err := s.automator.UpdateAutomation(id, req.Rate, req.BetSize, req.TargetGame)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAutomationResponse(id, cfg))
}

// handleStartAutomation handles POST /api/wallets/{id}/automation/start
func (s *Server) handleStartAutomation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := s.automator.StartAutomation(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAutomationResponse(id, cfg))
}

// handleStopAutomation handles POST /api/wallets/{id}/automation/stop
func (s *Server) handleStopAutomation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := s.automator.StopAutomation(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAutomationResponse(id, cfg))
}

// handleCost handles GET /api/cost?rate=&betSize= - spend estimate, excluding gas
func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rate := types.DefaultRate
	if raw := query.Get("rate"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < types.MinRate || parsed > types.MaxRate {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
				fmt.Sprintf("rate must be an integer between %d and %d", types.MinRate, types.MaxRate), nil)
			return
		}
		rate = parsed
	}

	betSize := types.DefaultBetSize
	if raw := query.Get("betSize"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || !parsed.IsPositive() {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "betSize must be a positive number", nil)
			return
		}
		betSize = parsed
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rate":    rate,
		"betSize": betSize.String(),
		"cost":    types.CalculateCost(rate, betSize),
	})
}
