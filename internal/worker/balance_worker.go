package worker

import (
	"context"
	"time"

	"github.com/slot-automator/internal/logging"
)

// BalanceRefresher re-reads every wallet balance
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context) (int, error)
}

// NewBalanceWorker refreshes cached wallet balances every interval
func NewBalanceWorker(refresher BalanceRefresher, interval time.Duration, logger *logging.Logger) (*PollWorker, error) {
	return NewPollWorker(PollWorkerConfig{
		Name:     "balance-worker",
		Interval: interval,
		Logger:   logger,
		Poll:     refresher.RefreshBalances,
	})
}
