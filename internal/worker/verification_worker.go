package worker

import (
	"context"
	"time"

	"github.com/slot-automator/internal/logging"
)

// Sweeper verifies at most one pending transaction per call
type Sweeper interface {
	Sweep(ctx context.Context) (string, error)
}

// NewVerificationWorker polls the oracle for the first pending transaction every interval
func NewVerificationWorker(sweeper Sweeper, interval time.Duration, logger *logging.Logger) (*PollWorker, error) {
	return NewPollWorker(PollWorkerConfig{
		Name:     "verification-worker",
		Interval: interval,
		Logger:   logger,
		Poll: func(ctx context.Context) (int, error) {
			hash, err := sweeper.Sweep(ctx)
			if hash == "" {
				return 0, err
			}
			return 1, err
		},
	})
}
