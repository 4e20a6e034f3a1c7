package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/types"
)

// Submitter places one bet for a wallet
type Submitter interface {
	Submit(ctx context.Context, walletID string, cfg types.AutomationConfig) (*types.TransactionRecord, error)
}

// WalletLookup resolves a wallet; it fails when the wallet is missing or the collection is locked
type WalletLookup interface {
	Get(id string) (types.WalletRecord, error)
}

// SchedulerConfig wires a Scheduler
type SchedulerConfig struct {
	Submitter Submitter
	Wallets   WalletLookup
	Defaults  types.AutomationConfig
	MinRate   int
	MaxRate   int
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Scheduler runs one betting loop per wallet. Each loop is a goroutine that
// submits inline on its own ticker, so a wallet never has two submissions in
// flight and a slow submission coalesces the ticks it missed into one.
type Scheduler struct {
	mu      sync.Mutex
	configs map[string]types.AutomationConfig
	loops   map[string]*loop

	submitter Submitter
	wallets   WalletLookup
	defaults  types.AutomationConfig
	minRate   int
	maxRate   int
	metrics   *metrics.Metrics
	logger    *logging.Logger
	interval  func(types.AutomationConfig) time.Duration

	// submissions run under ctx so Shutdown can abandon them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type loop struct {
	stop chan struct{}
	// wake asks the goroutine to pick up a new interval
	wake chan struct{}
}

// NewScheduler creates a scheduler with no running loops
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	defaults := cfg.Defaults
	if defaults.Rate == 0 {
		defaults.Rate = types.DefaultRate
	}
	if !defaults.BetSize.IsPositive() {
		defaults.BetSize = types.DefaultBetSize
	}
	if defaults.Game == "" {
		defaults.Game = types.DefaultGame
	}
	defaults.Running = false

	minRate, maxRate := cfg.MinRate, cfg.MaxRate
	if minRate < types.MinRate {
		minRate = types.MinRate
	}
	if maxRate <= 0 || maxRate > types.MaxRate {
		maxRate = types.MaxRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		configs:   make(map[string]types.AutomationConfig),
		loops:     make(map[string]*loop),
		submitter: cfg.Submitter,
		wallets:   cfg.Wallets,
		defaults:  defaults,
		minRate:   minRate,
		maxRate:   maxRate,
		metrics:   cfg.Metrics,
		logger:    logger.WithComponent("scheduler"),
		interval:  types.AutomationConfig.Interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start turns automation on for walletID. Missing settings are filled with
// the defaults; settings from an earlier run are reused. Starting a running
// wallet is a no-op.
func (s *Scheduler) Start(walletID string) (types.AutomationConfig, error) {
	if _, err := s.wallets.Get(walletID); err != nil {
		return types.AutomationConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return types.AutomationConfig{}, apperrors.NewServiceUnavailableError("scheduler")
	}
	if _, ok := s.loops[walletID]; ok {
		return s.configs[walletID], nil
	}

	cfg := s.withDefaults(s.configs[walletID])
	cfg.Running = true
	s.configs[walletID] = cfg

	l := &loop{stop: make(chan struct{}), wake: make(chan struct{}, 1)}
	s.loops[walletID] = l
	s.wg.Add(1)
	go s.run(walletID, l, s.interval(cfg))

	s.metrics.SetRunning(len(s.loops))
	s.logger.WithWallet(walletID).WithFields(map[string]interface{}{
		"rate":     cfg.Rate,
		"bet_size": cfg.BetSize.String(),
		"interval": cfg.Interval().String(),
	}).Info("automation started")
	return cfg, nil
}

// Stop turns automation off. Once Stop returns no new tick submits for the
// wallet; a submission already in flight runs to completion. Settings are kept.
func (s *Scheduler) Stop(walletID string) types.AutomationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(walletID)
	return s.configs[walletID]
}

// Remove stops the wallet and forgets its settings
func (s *Scheduler) Remove(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(walletID)
	delete(s.configs, walletID)
}

// StopAll stops every running loop and returns how many were stopped
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.loops)
	for id := range s.loops {
		s.stopLocked(id)
	}
	return n
}

// RemoveAll stops every loop and forgets all settings
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.loops {
		s.stopLocked(id)
	}
	s.configs = make(map[string]types.AutomationConfig)
}

func (s *Scheduler) stopLocked(walletID string) {
	l, ok := s.loops[walletID]
	if !ok {
		return
	}
	delete(s.loops, walletID)
	close(l.stop)
	if cfg, ok := s.configs[walletID]; ok {
		cfg.Running = false
		s.configs[walletID] = cfg
	}
	s.metrics.SetRunning(len(s.loops))
	s.logger.WithWallet(walletID).Info("automation stopped")
}

// UpdateConfig validates and stores new settings. A running loop switches to
// the new interval without restarting.
func (s *Scheduler) UpdateConfig(walletID string, rate int, betSize decimal.Decimal, game string) (types.AutomationConfig, error) {
	parsed, err := types.ParseGame(game)
	if err != nil {
		return types.AutomationConfig{}, apperrors.NewInvalidParameterError("targetGame", err.Error())
	}
	candidate := types.AutomationConfig{Rate: rate, BetSize: betSize, Game: parsed}
	if err := candidate.Validate(); err != nil {
		var fieldErr *types.FieldError
		if errors.As(err, &fieldErr) {
			return types.AutomationConfig{}, apperrors.NewInvalidParameterError(fieldErr.Field, fieldErr.Reason)
		}
		return types.AutomationConfig{}, apperrors.NewValidationError(err.Error())
	}
	// the deployment may narrow the rate range further
	if rate < s.minRate || rate > s.maxRate {
		return types.AutomationConfig{}, apperrors.NewInvalidParameterError("rate",
			fmt.Sprintf("must be between %d and %d", s.minRate, s.maxRate))
	}
	if _, err := s.wallets.Get(walletID); err != nil {
		return types.AutomationConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.configs[walletID]
	cfg.Rate = rate
	cfg.BetSize = betSize
	cfg.Game = parsed
	s.configs[walletID] = cfg

	if l, ok := s.loops[walletID]; ok {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	s.logger.WithWallet(walletID).WithField("rate", rate).Info("automation settings updated")
	return cfg, nil
}

// Config returns the settings of walletID, or the defaults if it has none yet
func (s *Scheduler) Config(walletID string) types.AutomationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.configs[walletID]; ok {
		return cfg
	}
	return s.defaults
}

// Running returns the ids of wallets with a running loop, sorted
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops every loop and waits for in-flight submissions. If ctx ends
// first the remaining submissions are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.StopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) withDefaults(cfg types.AutomationConfig) types.AutomationConfig {
	if cfg.Rate == 0 {
		cfg.Rate = s.defaults.Rate
	}
	if !cfg.BetSize.IsPositive() {
		cfg.BetSize = s.defaults.BetSize
	}
	if cfg.Game == "" {
		cfg.Game = s.defaults.Game
	}
	return cfg
}

// activeConfig returns the settings for a tick of l, or false when l has been stopped
func (s *Scheduler) activeConfig(walletID string, l *loop) (types.AutomationConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loops[walletID] != l {
		return types.AutomationConfig{}, false
	}
	cfg, ok := s.configs[walletID]
	if !ok || !cfg.Running {
		return types.AutomationConfig{}, false
	}
	return cfg, true
}

func (s *Scheduler) run(walletID string, l *loop, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
			cfg, ok := s.activeConfig(walletID, l)
			if !ok {
				return
			}
			if next := s.interval(cfg); next != interval {
				interval = next
				ticker.Reset(interval)
			}
			continue
		case <-ticker.C:
		}

		// select picks randomly when stop and a tick are both ready
		select {
		case <-l.stop:
			return
		default:
		}

		cfg, ok := s.activeConfig(walletID, l)
		if !ok {
			return
		}
		// failures are logged and notified by the submitter; the loop keeps going
		_, _ = s.submitter.Submit(s.ctx, walletID, cfg)
	}
}
