// Package types provides common type definitions for the slot automator.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Game identifies a contract game that automation can target.
// Only games the contract actually supports are listed.
type Game string

const (
	// GameSlots is the slot machine game
	GameSlots Game = "slots"
)

// DefaultGame is used when an automation config does not name one
const DefaultGame = GameSlots

// SupportedGames lists every game accepted by ParseGame
var SupportedGames = []Game{GameSlots}

// ParseGame converts a user supplied name into a Game.
// An empty name resolves to DefaultGame.
func ParseGame(name string) (Game, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultGame, nil
	}
	for _, g := range SupportedGames {
		if string(g) == name {
			return g, nil
		}
	}
	return "", fmt.Errorf("unsupported game %q", name)
}

// TransactionStatus represents the chain status of a submitted transaction.
// Records are created pending and no confirmation polling is performed.
type TransactionStatus string

const (
	// StatusPending is the status of every freshly submitted transaction
	StatusPending TransactionStatus = "pending"
)

// VerificationState is the jackpot outcome of a transaction as reported by the oracle
type VerificationState string

const (
	// VerificationPending means the oracle has not answered yet
	VerificationPending VerificationState = "pending"
	// VerificationWon means the bet hit the jackpot
	VerificationWon VerificationState = "won"
	// VerificationNoJackpot means the bet lost
	VerificationNoJackpot VerificationState = "no_jackpot"
)

// IsFinal reports whether the state is a resolved outcome
func (v VerificationState) IsFinal() bool {
	return v == VerificationWon || v == VerificationNoJackpot
}

// WalletRecord is a generated game wallet. Amounts are in wei.
type WalletRecord struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Address          string          `json:"address"`
	EncryptedSecret  string          `json:"encryptedPrivateKey"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int64           `json:"transactions"`
	TotalSent        decimal.Decimal `json:"totalSent"`
	TotalGasFees     decimal.Decimal `json:"totalGasFees"` // wei, gasPrice x gasLimit per broadcast
	CreatedAt        int64           `json:"createdAt"`    // Unix milliseconds
}

// WalletView is the public projection of a WalletRecord, without key material
type WalletView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	Balance          string `json:"balance"`
	BalanceEther     string `json:"balanceEther"`
	TransactionCount int64  `json:"transactions"`
	TotalSent        string `json:"totalSent"`
	TotalGasFees     string `json:"totalGasFees"`
	CreatedAt        int64  `json:"createdAt"`
}

// View strips the encrypted secret and formats amounts for display
func (w WalletRecord) View() WalletView {
	return WalletView{
		ID:               w.ID,
		Name:             w.Name,
		Address:          w.Address,
		Balance:          w.Balance.String(),
		BalanceEther:     FormatEther(w.Balance),
		TransactionCount: w.TransactionCount,
		TotalSent:        w.TotalSent.String(),
		TotalGasFees:     w.TotalGasFees.String(),
		CreatedAt:        w.CreatedAt,
	}
}

// TransactionRecord is one entry of the bet history
type TransactionRecord struct {
	Hash               string            `json:"hash"`
	Timestamp          int64             `json:"timestamp"` // Unix milliseconds
	Amount             decimal.Decimal   `json:"amount"`    // wei
	WalletID           string            `json:"walletId"`
	WalletName         string            `json:"walletName"`
	Game               Game              `json:"game"`
	Status             TransactionStatus `json:"status"`
	Verification       VerificationState `json:"verification"`
	Verifying          bool              `json:"verifying"`
	LastVerificationAt int64             `json:"lastVerificationAt,omitempty"`
}

// Automation defaults and bounds
const (
	DefaultRate = 10
	MinRate     = 1
	MaxRate     = 30
)

// DefaultBetSize is the native token amount bet per transaction when none is configured
var DefaultBetSize = decimal.RequireFromString("0.012")

// AutomationConfig holds the per-wallet betting loop settings. It lives in memory only.
type AutomationConfig struct {
	Running bool            `json:"running"`
	Rate    int             `json:"rate"`    // transactions per minute
	BetSize decimal.Decimal `json:"betSize"` // native token units
	Game    Game            `json:"targetGame"`
}

// DefaultAutomationConfig returns a stopped config with default values
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		Rate:    DefaultRate,
		BetSize: DefaultBetSize,
		Game:    DefaultGame,
	}
}

// Interval is the time between two ticks at the configured rate
func (c AutomationConfig) Interval() time.Duration {
	rate := c.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	return time.Minute / time.Duration(rate)
}

// FieldError names the setting that failed validation
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Validate checks the rate range, bet size sign and game. The error is a *FieldError.
func (c AutomationConfig) Validate() error {
	if _, err := ParseGame(string(c.Game)); err != nil {
		return &FieldError{Field: "targetGame", Reason: err.Error()}
	}
	if c.Rate < MinRate || c.Rate > MaxRate {
		return &FieldError{Field: "rate", Reason: fmt.Sprintf("must be between %d and %d transactions per minute, got %d", MinRate, MaxRate, c.Rate)}
	}
	if !c.BetSize.IsPositive() {
		return &FieldError{Field: "betSize", Reason: fmt.Sprintf("must be positive, got %s", c.BetSize.String())}
	}
	return nil
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

var weiPerEther = decimal.New(1, 18)

// EtherToWei converts a native token amount to wei, truncating below one wei
func EtherToWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerEther).Truncate(0).BigInt()
}

// WeiToEther converts a wei amount to native token units
func WeiToEther(wei decimal.Decimal) decimal.Decimal {
	return wei.Div(weiPerEther)
}

// FormatEther renders a wei amount in native token units with 4 decimals
func FormatEther(wei decimal.Decimal) string {
	return WeiToEther(wei).StringFixed(4)
}
