package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/adapter"
	"github.com/slot-automator/internal/contract"
	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/session"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
)

// NativeSymbol is the ticker used in user-facing messages
const NativeSymbol = "RON"

// WalletSource is the part of the wallet registry the submitter needs
type WalletSource interface {
	Get(id string) (types.WalletRecord, error)
	Passphrase() (string, error)
	RecordSubmission(ctx context.Context, id string, amountWei, gasFeeWei decimal.Decimal) error
}

// AutomationSource reports the current automation settings of a wallet
type AutomationSource interface {
	Config(walletID string) types.AutomationConfig
}

// ChainParams are the fixed transaction fields
type ChainParams struct {
	ChainID  *big.Int
	GasPrice *big.Int // wei
	GasLimit uint64
	TxValue  *big.Int // wei attached to every play call
}

// SubmitterConfig wires a Submitter
type SubmitterConfig struct {
	Wallets  WalletSource
	Sessions *session.Cache
	Box      *secret.Box
	Chain    adapter.ChainClient
	History  *HistoryLog
	Notifier notify.Publisher
	Ledger   storage.Ledger
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Params   ChainParams
}

// Submitter signs and broadcasts one bet per call
type Submitter struct {
	wallets  WalletSource
	sessions *session.Cache
	box      *secret.Box
	chain    adapter.ChainClient
	history  *HistoryLog
	notifier notify.Publisher
	ledger   storage.Ledger
	metrics  *metrics.Metrics
	logger   *logging.Logger
	params   ChainParams

	automation AutomationSource

	random io.Reader
	now    func() time.Time
}

// NewSubmitter creates a submitter
func NewSubmitter(cfg SubmitterConfig) *Submitter {
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
	return &Submitter{
		wallets:  cfg.Wallets,
		sessions: cfg.Sessions,
		box:      cfg.Box,
		chain:    cfg.Chain,
		history:  cfg.History,
		notifier: notifier,
		ledger:   ledger,
		metrics:  cfg.Metrics,
		logger:   logger.WithComponent("submitter"),
		params:   cfg.Params,
		random:   rand.Reader,
		now:      time.Now,
	}
}

// SetAutomation makes Submit read the live settings of the wallet instead of
// the copy it is handed, so a loop stopped after its tick fired submits nothing.
func (s *Submitter) SetAutomation(src AutomationSource) {
	s.automation = src
}

// Submit places one bet for walletID using cfg. It returns (nil, nil) when
// there is nothing to do: the wallet is gone, the registry is locked or the
// automation is no longer running. Failures are logged and notified before
// being returned; nothing is retried and no state changes on failure.
func (s *Submitter) Submit(ctx context.Context, walletID string, cfg types.AutomationConfig) (*types.TransactionRecord, error) {
	if s.automation != nil {
		cfg = s.automation.Config(walletID)
	}
	if !cfg.Running {
		return nil, nil
	}
	logger := s.logger.WithWallet(walletID)

	wallet, err := s.wallets.Get(walletID)
	if err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsLocked(err) {
			logger.WithError(err).Debug("skipping tick")
			return nil, nil
		}
		return nil, err
	}

	start := s.now()
	rec, err := s.submit(ctx, wallet, cfg)
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		s.metrics.Submission(submissionResult(err), elapsed)
		logger.WithError(err).Error("transaction submission failed")
		s.notifier.Publish(notify.Notification{
			Level:    notify.LevelError,
			Title:    fmt.Sprintf("Transaction failed for %s", wallet.Name),
			Message:  userMessage(err),
			WalletID: wallet.ID,
		})
		return nil, err
	}

	s.metrics.Submission(metrics.ResultSuccess, elapsed)
	s.notifier.Publish(notify.Notification{
		Level: notify.LevelSuccess,
		Title: fmt.Sprintf("Transaction sent from %s", wallet.Name),
		Message: fmt.Sprintf("Bet %s %s on %s - TX: %s...",
			cfg.BetSize.String(), NativeSymbol, rec.Game, shortHash(rec.Hash)),
		WalletID: wallet.ID,
		TxHash:   rec.Hash,
	})
	return rec, nil
}

func (s *Submitter) submit(ctx context.Context, wallet types.WalletRecord, cfg types.AutomationConfig) (*types.TransactionRecord, error) {
	logger := s.logger.WithWallet(wallet.ID)

	passphrase, err := s.wallets.Passphrase()
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetOrCreate(wallet, passphrase)
	if err != nil {
		return nil, err
	}

	betID, err := contract.NewBetID(s.now(), s.random)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate bet id", err)
	}

	amount := types.EtherToWei(cfg.BetSize)
	data, err := sess.Slot.PackPlay(sess.Address, amount, betID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode play call", err)
	}

	// the signing key is re-derived from the record rather than trusted from the cache
	keyHex, err := s.box.DecryptString(wallet.EncryptedSecret, passphrase)
	if err != nil {
		return nil, err
	}
	key, derived, err := contract.ParseKey(keyHex)
	if err != nil {
		return nil, apperrors.NewInternalError("stored private key is unreadable", err)
	}
	if !strings.EqualFold(derived.Hex(), wallet.Address) || derived != sess.Address {
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("derived address %s does not match wallet %s", derived.Hex(), wallet.Address), nil)
	}

	nonce, err := s.chain.PendingNonceAt(ctx, derived)
	if err != nil {
		return nil, err
	}

	if s.params.TxValue.Cmp(amount) != 0 {
		logger.WithFields(map[string]interface{}{
			"bet_wei":   amount.String(),
			"value_wei": s.params.TxValue.String(),
		}).Warn("attached value differs from bet amount")
	}

	tx, raw, err := contract.SignLegacy(contract.TxParams{
		Nonce:    nonce,
		To:       sess.Slot.Address(),
		Value:    s.params.TxValue,
		GasLimit: s.params.GasLimit,
		GasPrice: s.params.GasPrice,
		Data:     data,
	}, key, s.params.ChainID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to sign transaction", err)
	}

	hash, err := s.chain.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		hash = tx.Hash().Hex()
	}
	logger = logger.WithTx(hash)
	logger.WithField("nonce", nonce).Info("transaction broadcast")

	game := cfg.Game
	if game == "" {
		game = types.DefaultGame
	}
	rec := types.TransactionRecord{
		Hash:         hash,
		Timestamp:    s.now().UnixMilli(),
		Amount:       decimal.NewFromBigInt(amount, 0),
		WalletID:     wallet.ID,
		WalletName:   wallet.Name,
		Game:         game,
		Status:       types.StatusPending,
		Verification: types.VerificationPending,
	}

	// the bet is on chain now; bookkeeping failures are reported, not returned
	if err := s.history.Prepend(ctx, rec); err != nil {
		logger.WithError(err).Error("failed to record transaction in history")
	}
	gasFee := new(big.Int).Mul(s.params.GasPrice, new(big.Int).SetUint64(s.params.GasLimit))
	if err := s.wallets.RecordSubmission(ctx, wallet.ID, rec.Amount, decimal.NewFromBigInt(gasFee, 0)); err != nil {
		logger.WithError(err).Error("failed to update wallet counters")
	}
	if err := s.ledger.RecordBet(ctx, rec); err != nil {
		logger.WithError(err).Warn("failed to append bet to ledger")
	}
	return &rec, nil
}

func submissionResult(err error) string {
	switch {
	case apperrors.IsSubmission(err):
		return metrics.ResultRejected
	case apperrors.IsNetwork(err):
		return metrics.ResultNetwork
	default:
		return metrics.ResultFailed
	}
}

// userMessage is the categorized message without the code prefix
func userMessage(err error) string {
	ce := apperrors.Categorize(err)
	if ce == nil {
		return err.Error()
	}
	if ce.Cause != nil {
		return fmt.Sprintf("%s: %v", ce.Message, ce.Cause)
	}
	return ce.Message
}

func shortHash(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10]
}
