package service

import (
	"context"
	"fmt"
	"time"

	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
)

// Oracle resolves the jackpot outcome of a transaction
type Oracle interface {
	Check(ctx context.Context, hash string) (types.VerificationState, error)
}

// VerifierConfig wires a Verifier
type VerifierConfig struct {
	History  *HistoryLog
	Oracle   Oracle
	Ledger   storage.Ledger
	Notifier notify.Publisher
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Verifier resolves pending history records against the oracle
type Verifier struct {
	history  *HistoryLog
	oracle   Oracle
	ledger   storage.Ledger
	notifier notify.Publisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewVerifier creates a verifier
func NewVerifier(cfg VerifierConfig) *Verifier {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = storage.NopLedger{}
	}
	return &Verifier{
		history:  cfg.History,
		oracle:   cfg.Oracle,
		ledger:   ledger,
		notifier: notifier,
		metrics:  cfg.Metrics,
		logger:   logger.WithComponent("verifier"),
		now:      time.Now,
	}
}

// Sweep verifies the first pending record that is not already being verified.
// It returns the hash it worked on, or "" when nothing was eligible. A failed
// oracle call leaves the record pending so the next sweep picks it up again.
func (v *Verifier) Sweep(ctx context.Context) (string, error) {
	rec, ok, err := v.history.ClaimNextPending(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	_, err = v.verify(ctx, rec)
	return rec.Hash, err
}

// ForceCheck verifies hash immediately, whatever its current state. It fails
// with not found for an unknown hash and with a conflict while another
// verification of the same record is in flight.
func (v *Verifier) ForceCheck(ctx context.Context, hash string) (types.VerificationState, error) {
	rec, err := v.history.Claim(ctx, hash)
	if err != nil {
		return "", err
	}
	v.logger.WithTx(hash).WithField("previous", rec.Verification).Info("forced verification")
	return v.verify(ctx, rec)
}

func (v *Verifier) verify(ctx context.Context, rec types.TransactionRecord) (types.VerificationState, error) {
	logger := v.logger.WithTx(rec.Hash)

	state, err := v.oracle.Check(ctx, rec.Hash)
	if err != nil {
		v.metrics.Verification("error")
		logger.WithError(err).Warn("verification failed, will retry")
		if relErr := v.history.Release(ctx, rec.Hash); relErr != nil {
			logger.WithError(relErr).Error("failed to release verification claim")
		}
		return "", err
	}

	if err := v.history.Resolve(ctx, rec.Hash, state); err != nil {
		logger.WithError(err).Error("failed to store verification outcome")
		return "", err
	}
	v.metrics.Verification(string(state))
	logger.WithField("outcome", state).Info("transaction verified")

	if err := v.ledger.RecordOutcome(ctx, rec.Hash, state, v.now()); err != nil {
		logger.WithError(err).Warn("failed to append outcome to ledger")
	}
	if state == types.VerificationWon {
		v.notifier.Publish(notify.Notification{
			Level:    notify.LevelSuccess,
			Title:    fmt.Sprintf("Jackpot for %s", rec.WalletName),
			Message:  fmt.Sprintf("Transaction %s... won", shortHash(rec.Hash)),
			WalletID: rec.WalletID,
			TxHash:   rec.Hash,
		})
	}
	return state, nil
}
