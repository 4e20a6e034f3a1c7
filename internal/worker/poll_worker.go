package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slot-automator/internal/logging"
)

// PollFunc does one unit of periodic work and returns how many items it handled
type PollFunc func(ctx context.Context) (int, error)

// PollWorker runs a PollFunc on a fixed interval until stopped.
// Errors are logged and never stop the loop.
type PollWorker struct {
	name     string
	interval time.Duration
	poll     PollFunc
	logger   *logging.Logger

	mu           sync.RWMutex
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	lastPollTime time.Time
	lastError    string
	polls        uint64
	failures     uint64
	handled      uint64
}

// PollWorkerConfig holds configuration for a poll worker
type PollWorkerConfig struct {
	Name     string
	Interval time.Duration
	Poll     PollFunc
	Logger   *logging.Logger
}

// PollWorkerStatus is a snapshot of a worker for the health endpoint
type PollWorkerStatus struct {
	Name         string    `json:"name"`
	Running      bool      `json:"running"`
	Interval     string    `json:"interval"`
	LastPollTime time.Time `json:"lastPollTime,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	Polls        uint64    `json:"polls"`
	Failures     uint64    `json:"failures"`
	Handled      uint64    `json:"handled"`
}

// NewPollWorker creates a stopped worker
func NewPollWorker(cfg PollWorkerConfig) (*PollWorker, error) {
	if cfg.Poll == nil {
		return nil, fmt.Errorf("poll function cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", cfg.Interval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PollWorker{
		name:     cfg.Name,
		interval: cfg.Interval,
		poll:     cfg.Poll,
		logger:   logger.WithComponent(cfg.Name),
	}, nil
}

// Start begins polling in a goroutine
func (w *PollWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("%s is already running", w.name)
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.WithField("interval", w.interval.String()).Info("worker started")
	go w.pollLoop(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop signals the loop and waits for the current poll to finish
func (w *PollWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.Info("worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("worker stop timed out")
		return ctx.Err()
	}
}

func (w *PollWorker) pollLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

// PollOnce runs one poll synchronously and records its outcome
func (w *PollWorker) PollOnce(ctx context.Context) {
	handled, err := w.poll(ctx)

	w.mu.Lock()
	w.lastPollTime = time.Now()
	w.polls++
	w.handled += uint64(handled)
	if err != nil {
		w.failures++
		w.lastError = err.Error()
	} else {
		w.lastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.WithError(err).Warn("poll failed")
		return
	}
	if handled > 0 {
		w.logger.WithField("handled", handled).Debug("poll completed")
	}
}

// GetStatus returns a snapshot of the worker
func (w *PollWorker) GetStatus() *PollWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return &PollWorkerStatus{
		Name:         w.name,
		Running:      w.running,
		Interval:     w.interval.String(),
		LastPollTime: w.lastPollTime,
		LastError:    w.lastError,
		Polls:        w.polls,
		Failures:     w.failures,
		Handled:      w.handled,
	}
}
