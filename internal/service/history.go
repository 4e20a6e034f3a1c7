package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
)

// DefaultHistoryCapacity is the number of records kept when none is configured
const DefaultHistoryCapacity = 100

// HistoryLog is the bounded bet history, newest first. Every mutation is
// applied to a copy, persisted, and only then made visible.
type HistoryLog struct {
	mu       sync.Mutex
	store    storage.Store
	key      string
	capacity int
	records  []types.TransactionRecord
	logger   *logging.Logger
	now      func() time.Time
}

// NewHistoryLog creates an empty log; call Load to read persisted records
func NewHistoryLog(store storage.Store, key string, capacity int, logger *logging.Logger) *HistoryLog {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &HistoryLog{
		store:    store,
		key:      key,
		capacity: capacity,
		logger:   logger.WithComponent("history"),
		now:      time.Now,
	}
}

// Load replaces the in-memory log with the persisted one. Records left
// verifying by a previous process are released and a missing verification
// state is treated as pending.
func (h *HistoryLog) Load(ctx context.Context) error {
	raw, ok, err := h.store.Get(ctx, h.key)
	if err != nil {
		return apperrors.NewStorageError("load history", err)
	}

	var records []types.TransactionRecord
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			// a damaged history is not worth refusing to start over
			h.logger.WithError(err).Warn("persisted history is malformed, starting empty")
			records = nil
		}
	}

	for i := range records {
		records[i].Verifying = false
		if records[i].Verification == "" {
			records[i].Verification = types.VerificationPending
		}
		if records[i].Status == "" {
			records[i].Status = types.StatusPending
		}
	}
	if len(records) > h.capacity {
		records = records[:h.capacity]
	}

	h.mu.Lock()
	h.records = records
	h.mu.Unlock()

	h.logger.WithField("records", len(records)).Debug("history loaded")
	return nil
}

// List returns a copy of the log, newest first
func (h *HistoryLog) List() []types.TransactionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.TransactionRecord{}, h.records...)
}

// Len returns the number of records
func (h *HistoryLog) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Get returns the record with hash
func (h *HistoryLog) Get(hash string) (types.TransactionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.indexLocked(hash)
	if idx < 0 {
		return types.TransactionRecord{}, false
	}
	return h.records[idx], true
}

// Prepend adds rec at the front, evicting the oldest records beyond capacity
func (h *HistoryLog) Prepend(ctx context.Context, rec types.TransactionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.records) + 1
	if n > h.capacity {
		n = h.capacity
	}
	next := make([]types.TransactionRecord, 0, n)
	next = append(next, rec)
	next = append(next, h.records[:n-1]...)
	return h.commitLocked(ctx, next)
}

// ClaimNextPending marks the first pending record that is not already being
// verified, in stored order, and returns it. ok is false when there is none.
func (h *HistoryLog) ClaimNextPending(ctx context.Context) (rec types.TransactionRecord, ok bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, r := range h.records {
		if r.Verification != types.VerificationPending || r.Verifying {
			continue
		}
		if err := h.setVerifyingLocked(ctx, i); err != nil {
			return types.TransactionRecord{}, false, err
		}
		return h.records[i], true, nil
	}
	return types.TransactionRecord{}, false, nil
}

// Claim marks the record with hash as being verified regardless of its state.
// It fails with a conflict when a verification of that record is already running.
func (h *HistoryLog) Claim(ctx context.Context, hash string) (types.TransactionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexLocked(hash)
	if idx < 0 {
		return types.TransactionRecord{}, apperrors.NewNotFoundError("transaction", hash)
	}
	if h.records[idx].Verifying {
		return types.TransactionRecord{}, apperrors.NewConflictError("transaction " + hash + " is already being verified")
	}
	if err := h.setVerifyingLocked(ctx, idx); err != nil {
		return types.TransactionRecord{}, err
	}
	return h.records[idx], nil
}

// Resolve stores the oracle outcome and releases the claim
func (h *HistoryLog) Resolve(ctx context.Context, hash string, state types.VerificationState) error {
	return h.finish(ctx, hash, func(r *types.TransactionRecord) {
		r.Verification = state
	})
}

// Release gives up a claim after a failed oracle call, leaving the state as is
func (h *HistoryLog) Release(ctx context.Context, hash string) error {
	return h.finish(ctx, hash, func(*types.TransactionRecord) {})
}

func (h *HistoryLog) finish(ctx context.Context, hash string, apply func(*types.TransactionRecord)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexLocked(hash)
	if idx < 0 {
		// evicted while the oracle was answering
		return apperrors.NewNotFoundError("transaction", hash)
	}
	next := append([]types.TransactionRecord{}, h.records...)
	apply(&next[idx])
	next[idx].Verifying = false
	next[idx].LastVerificationAt = h.now().UnixMilli()
	if err := h.commitLocked(ctx, next); err != nil {
		// the claim is never persisted state; drop it so the record stays eligible
		h.records[idx].Verifying = false
		h.logger.WithTx(hash).WithError(err).Warn("failed to persist verification result, record left pending")
		return err
	}
	return nil
}

func (h *HistoryLog) setVerifyingLocked(ctx context.Context, idx int) error {
	next := append([]types.TransactionRecord{}, h.records...)
	next[idx].Verifying = true
	return h.commitLocked(ctx, next)
}

// commitLocked persists next and swaps it in; on failure the log is unchanged
func (h *HistoryLog) commitLocked(ctx context.Context, next []types.TransactionRecord) error {
	data, err := json.Marshal(next)
	if err != nil {
		return apperrors.NewInternalError("failed to encode history", err)
	}
	if err := h.store.Set(ctx, h.key, string(data)); err != nil {
		return apperrors.NewStorageError("persist history", err)
	}
	h.records = next
	return nil
}

func (h *HistoryLog) indexLocked(hash string) int {
	for i, r := range h.records {
		if r.Hash == hash {
			return i
		}
	}
	return -1
}
