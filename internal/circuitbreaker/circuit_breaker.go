// Package circuitbreaker stops calling an upstream that keeps failing.
//
// While open, calls fail fast with ErrCircuitOpen. After the cool-down a
// limited number of trial calls are let through. Enough successes close the
// circuit again and any failure reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/slot-automator/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls go through
	StateClosed State = "closed"
	// StateOpen means calls are rejected
	StateOpen State = "open"
	// StateHalfOpen means a few trial calls go through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open call budget is used up
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string
	// ConsecutiveFailures opens the circuit
	ConsecutiveFailures int
	// Cooldown before an open circuit lets a trial call through
	Cooldown time.Duration
	// HalfOpenMaxCalls trial calls in flight or succeeded before closing
	HalfOpenMaxCalls int
}

// DefaultConfig returns the configuration used for relay balance reads
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		ConsecutiveFailures: 5,
		Cooldown:            30 * time.Second,
		HalfOpenMaxCalls:    1,
	}
}

// Stats is a snapshot of the breaker
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	Rejected         int64     `json:"rejected"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	halfOpenOK       int
	rejected         int64
	lastStateChange  time.Time
}

// New creates a closed circuit breaker
func New(cfg Config, logger *logging.Logger) *CircuitBreaker {
	if cfg.ConsecutiveFailures <= 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	cb := &CircuitBreaker{
		cfg:    cfg,
		logger: logger.WithField("circuitBreaker", cfg.Name),
		now:    time.Now,
		state:  StateClosed,
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Execute runs fn unless the circuit is open. A cancelled context does not
// count as an upstream failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cfg.Cooldown {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.logger.Info("circuit breaker half-open, trying upstream")
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			cb.rejected++
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		// the caller gave up; say nothing about the upstream
		if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
		return
	}

	if err == nil {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.cfg.HalfOpenMaxCalls {
				cb.setState(StateClosed)
				cb.logger.Info("circuit breaker closed after successful trial call")
			}
		}
		return
	}

	cb.consecutiveFails++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.cfg.ConsecutiveFailures {
			cb.setState(StateOpen)
			cb.logger.WithFields(map[string]interface{}{
				"consecutiveFails": cb.consecutiveFails,
				"cooldown":         cb.cfg.Cooldown.String(),
			}).WithError(err).Warn("circuit breaker opened")
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.WithError(err).Warn("circuit breaker reopened after failed trial call")
	}
}

// setState must be called with the lock held
func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker
func (cb *CircuitBreaker) Stats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return &Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		Rejected:         cb.rejected,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset closes the circuit and clears the failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.consecutiveFails = 0
	cb.logger.Info("circuit breaker manually reset")
}
