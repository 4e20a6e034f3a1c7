package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/slot-automator/internal/types"
)

// Ledger is an append-only record of bets and their outcomes for later analysis
type Ledger interface {
	RecordBet(ctx context.Context, rec types.TransactionRecord) error
	RecordOutcome(ctx context.Context, hash string, outcome types.VerificationState, at time.Time) error
}

// NopLedger discards everything
type NopLedger struct{}

// RecordBet does nothing
func (NopLedger) RecordBet(context.Context, types.TransactionRecord) error { return nil }

// RecordOutcome does nothing
func (NopLedger) RecordOutcome(context.Context, string, types.VerificationState, time.Time) error {
	return nil
}

// ClickHouseLedger appends rows to the bet_ledger table.
// Outcomes are separate rows keyed by hash; the latest row wins on read.
type ClickHouseLedger struct {
	db *ClickHouseDB
}

// NewClickHouseLedger creates a ledger on an open connection
func NewClickHouseLedger(db *ClickHouseDB) *ClickHouseLedger {
	return &ClickHouseLedger{db: db}
}

// RecordBet appends a submitted bet
func (l *ClickHouseLedger) RecordBet(ctx context.Context, rec types.TransactionRecord) error {
	err := l.db.conn.Exec(ctx, `
		INSERT INTO bet_ledger (tx_hash, wallet_id, wallet_name, game, amount_wei, outcome, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Hash,
		rec.WalletID,
		rec.WalletName,
		string(rec.Game),
		rec.Amount.String(),
		string(types.VerificationPending),
		time.UnixMilli(rec.Timestamp).UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record bet %s: %w", rec.Hash, err)
	}
	return nil
}

// RecordOutcome appends a resolved outcome for hash
func (l *ClickHouseLedger) RecordOutcome(ctx context.Context, hash string, outcome types.VerificationState, at time.Time) error {
	err := l.db.conn.Exec(ctx, `
		INSERT INTO bet_ledger (tx_hash, wallet_id, wallet_name, game, amount_wei, outcome, event_time)
		VALUES (?, '', '', '', '0', ?, ?)
	`, hash, string(outcome), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", hash, err)
	}
	return nil
}
