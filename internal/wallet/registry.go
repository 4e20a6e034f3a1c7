// Package wallet manages the encrypted collection of game wallets.
//
// The whole collection is serialized to JSON, encrypted under the user
// passphrase and stored as a single value. Every mutation is
// read-modify-persist under one mutex and is undone if the persist fails.
package wallet

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/adapter"
	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/session"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
)

// Registry owns the wallet collection and the passphrase that unlocks it
type Registry struct {
	mu sync.Mutex

	store    storage.Store
	key      string
	box      *secret.Box
	sessions *session.Cache
	chain    adapter.ChainClient
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time

	unlocked   bool
	passphrase string
	wallets    []types.WalletRecord
}

// Config wires a Registry
type Config struct {
	Store    storage.Store
	Key      string
	Box      *secret.Box
	Sessions *session.Cache
	Chain    adapter.ChainClient
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// NewRegistry creates a locked registry
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Registry{
		store:    cfg.Store,
		key:      cfg.Key,
		box:      cfg.Box,
		sessions: cfg.Sessions,
		chain:    cfg.Chain,
		metrics:  cfg.Metrics,
		logger:   logger.WithComponent("wallet-registry"),
		now:      time.Now,
	}
}

// Unlock loads and decrypts the persisted collection. When nothing is
// persisted yet the registry starts empty and the passphrase becomes the
// one future saves are encrypted with.
func (r *Registry) Unlock(ctx context.Context, passphrase string) error {
	if passphrase == "" {
		return apperrors.NewValidationError("passphrase is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	blob, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return apperrors.NewStorageError("load wallets", err)
	}

	var wallets []types.WalletRecord
	if ok {
		plaintext, err := r.box.Decrypt(blob, passphrase)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(plaintext, &wallets); err != nil {
			return apperrors.NewInternalError("stored wallet collection is malformed", err)
		}
	}
	if wallets == nil {
		wallets = []types.WalletRecord{}
	}

	if r.unlocked && r.passphrase != passphrase {
		// a different passphrase can only get here for an empty store
		r.sessions.Clear()
	}
	r.wallets = wallets
	r.passphrase = passphrase
	r.unlocked = true

	r.logger.WithField("wallets", len(wallets)).Info("wallet collection unlocked")
	return nil
}

// IsUnlocked reports whether a passphrase has been accepted
func (r *Registry) IsUnlocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked
}

// Lock forgets the passphrase, the decrypted collection and every signing session.
// Persisted state is untouched.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unlocked = false
	r.passphrase = ""
	r.wallets = nil
	r.sessions.Clear()
}

// Passphrase returns the active passphrase
func (r *Registry) Passphrase() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return "", apperrors.NewLockedError()
	}
	return r.passphrase, nil
}

// Create generates a fresh key, stores it encrypted and persists the collection
func (r *Registry) Create(ctx context.Context, name string) (types.WalletRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.WalletRecord{}, apperrors.NewValidationError("wallet name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.unlocked {
		return types.WalletRecord{}, apperrors.NewLockedError()
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return types.WalletRecord{}, apperrors.NewInternalError("failed to generate key", err)
	}
	encrypted, err := r.box.EncryptString(hexutil.Encode(crypto.FromECDSA(key)), r.passphrase)
	if err != nil {
		return types.WalletRecord{}, apperrors.NewInternalError("failed to encrypt key", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return types.WalletRecord{}, apperrors.NewInternalError("failed to generate wallet id", err)
	}

	record := types.WalletRecord{
		ID:              id.String(),
		Name:            name,
		Address:         crypto.PubkeyToAddress(key.PublicKey).Hex(),
		EncryptedSecret: encrypted,
		Balance:         decimal.Zero,
		TotalSent:       decimal.Zero,
		TotalGasFees:    decimal.Zero,
		CreatedAt:       r.now().UnixMilli(),
	}

	previous := r.wallets
	r.wallets = append(append([]types.WalletRecord{}, previous...), record)
	if err := r.persistLocked(ctx); err != nil {
		r.wallets = previous
		return types.WalletRecord{}, err
	}

	r.logger.WithWallet(record.ID).WithField("address", record.Address).Info("game wallet created")
	return record, nil
}

// Delete removes a wallet and its cached session
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.unlocked {
		return apperrors.NewLockedError()
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		return apperrors.NewNotFoundError("wallet", id)
	}

	previous := r.wallets
	next := make([]types.WalletRecord, 0, len(previous)-1)
	next = append(next, previous[:idx]...)
	next = append(next, previous[idx+1:]...)
	r.wallets = next

	if err := r.persistLocked(ctx); err != nil {
		r.wallets = previous
		return err
	}
	r.sessions.Evict(id)

	r.logger.WithWallet(id).Info("game wallet deleted")
	return nil
}

// Reset deletes the persisted collection and forgets everything in memory
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, r.key); err != nil {
		return apperrors.NewStorageError("delete wallets", err)
	}
	r.unlocked = false
	r.passphrase = ""
	r.wallets = nil
	r.sessions.Clear()

	r.logger.Warn("wallet collection reset")
	return nil
}

// List returns a copy of the collection in creation order
func (r *Registry) List() ([]types.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return nil, apperrors.NewLockedError()
	}
	return append([]types.WalletRecord{}, r.wallets...), nil
}

// Get returns one wallet
func (r *Registry) Get(id string) (types.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.unlocked {
		return types.WalletRecord{}, apperrors.NewLockedError()
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		return types.WalletRecord{}, apperrors.NewNotFoundError("wallet", id)
	}
	return r.wallets[idx], nil
}

// ExportKey decrypts a wallet key with a freshly supplied passphrase
func (r *Registry) ExportKey(id, passphrase string) (string, error) {
	wallet, err := r.Get(id)
	if err != nil {
		return "", err
	}
	key, err := r.box.DecryptString(wallet.EncryptedSecret, passphrase)
	if err != nil {
		return "", err
	}
	r.logger.WithWallet(id).Warn("private key exported")
	return key, nil
}

// RecordSubmission bumps the counters of a wallet after a successful broadcast.
// gasFeeWei is the most the transaction can pay for gas.
func (r *Registry) RecordSubmission(ctx context.Context, id string, amountWei, gasFeeWei decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.unlocked {
		return apperrors.NewLockedError()
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		return apperrors.NewNotFoundError("wallet", id)
	}

	previous := r.wallets
	next := append([]types.WalletRecord{}, previous...)
	next[idx].TransactionCount++
	next[idx].TotalSent = next[idx].TotalSent.Add(amountWei)
	next[idx].TotalGasFees = next[idx].TotalGasFees.Add(gasFeeWei)
	r.wallets = next

	if err := r.persistLocked(ctx); err != nil {
		r.wallets = previous
		return err
	}
	return nil
}

func (r *Registry) indexLocked(id string) int {
	return indexIn(r.wallets, id)
}

// persistLocked encrypts and stores the current collection
func (r *Registry) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(r.wallets)
	if err != nil {
		return apperrors.NewInternalError("failed to encode wallets", err)
	}
	blob, err := r.box.Encrypt(data, r.passphrase)
	if err != nil {
		return apperrors.NewInternalError("failed to encrypt wallets", err)
	}
	if err := r.store.Set(ctx, r.key, blob); err != nil {
		return apperrors.NewStorageError("persist wallets", err)
	}
	return nil
}

