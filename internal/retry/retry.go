// Package retry runs an operation again with exponential backoff.
//
// It is meant for establishing connections at startup. Chain submissions and
// oracle calls are never retried through it.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/slot-automator/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the backoff used for startup connections.
// Pattern: 1s, 2s, 4s, 8s, max 30s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result reports how an operation went
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"-"`
}

// Func is one attempt, numbered from 1
type Func func(ctx context.Context, attempt int) error

// Do calls fn until it succeeds, attempts run out or ctx is done
func Do(ctx context.Context, cfg Config, fn Func) (*Result, error) {
	logger := logging.FromContext(ctx)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts": attempt,
					"duration": result.TotalDuration.String(),
				}).Info("operation succeeded after retry")
			}
			return result, nil
		}
		result.LastError = err

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Delay(cfg, attempt)
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
		}).Warn("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		}
	}

	result.TotalDuration = time.Since(start)
	return result, fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
}

// Delay returns the wait after the given failed attempt
func Delay(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
