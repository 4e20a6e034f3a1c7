// Package app holds the runtime object that ties the wallet registry, the
// betting loops and the background workers together. The HTTP API and the
// CLI talk to an App, never to the parts directly.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/adapter"
	"github.com/slot-automator/internal/config"
	"github.com/slot-automator/internal/contract"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/service"
	"github.com/slot-automator/internal/session"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
	"github.com/slot-automator/internal/wallet"
	"github.com/slot-automator/internal/worker"
)

// Options are the collaborators an App is built from
type Options struct {
	Store      storage.Store
	Keys       storage.Keys
	Chain      adapter.ChainClient
	Oracle     service.Oracle
	Ledger     storage.Ledger
	Box        *secret.Box
	Slot       *contract.Slot
	Params     service.ChainParams
	Automation config.AutomationConfig
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

// WalletStatus is a wallet together with its automation settings
type WalletStatus struct {
	types.WalletView
	Automation types.AutomationConfig `json:"automation"`
}

// Health summarizes the upstream endpoints and the background workers
type Health struct {
	Unlocked bool                       `json:"unlocked"`
	Running  int                        `json:"runningAutomations"`
	History  int                        `json:"historySize"`
	Relay    *adapter.EndpointHealth    `json:"relay,omitempty"`
	Oracle   *adapter.EndpointHealth    `json:"oracle,omitempty"`
	Workers  []*worker.PollWorkerStatus `json:"workers"`
}

type healthReporter interface {
	Health() *adapter.EndpointHealth
}

// App is the single runtime object of the service
type App struct {
	store     storage.Store
	chain     adapter.ChainClient
	oracle    service.Oracle
	registry  *wallet.Registry
	sessions  *session.Cache
	history   *service.HistoryLog
	submitter *service.Submitter
	verifier  *service.Verifier
	scheduler *worker.Scheduler
	workers   []*worker.PollWorker
	bus       *notify.Bus
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// New wires an App. Nothing runs until Start.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if opts.Store == nil || opts.Chain == nil || opts.Oracle == nil {
		return nil, fmt.Errorf("store, chain and oracle are required")
	}
	if opts.Box == nil || opts.Slot == nil {
		return nil, fmt.Errorf("secret box and slot contract are required")
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = storage.NopLedger{}
	}

	bus := notify.NewBus()
	sessions := session.NewCache(opts.Box, opts.Slot, opts.Params.ChainID)
	registry := wallet.NewRegistry(wallet.Config{
		Store:    opts.Store,
		Key:      opts.Keys.Wallets,
		Box:      opts.Box,
		Sessions: sessions,
		Chain:    opts.Chain,
		Metrics:  opts.Metrics,
		Logger:   logger,
	})
	history := service.NewHistoryLog(opts.Store, opts.Keys.History, opts.Automation.HistoryCapacity, logger)

	submitter := service.NewSubmitter(service.SubmitterConfig{
		Wallets:  registry,
		Sessions: sessions,
		Box:      opts.Box,
		Chain:    opts.Chain,
		History:  history,
		Notifier: bus,
		Ledger:   ledger,
		Metrics:  opts.Metrics,
		Logger:   logger,
		Params:   opts.Params,
	})
	verifier := service.NewVerifier(service.VerifierConfig{
		History:  history,
		Oracle:   opts.Oracle,
		Ledger:   ledger,
		Notifier: bus,
		Metrics:  opts.Metrics,
		Logger:   logger,
	})
	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Submitter: submitter,
		Wallets:   registry,
		Defaults: types.AutomationConfig{
			Rate:    opts.Automation.DefaultRate,
			BetSize: opts.Automation.DefaultBetSize,
			Game:    types.DefaultGame,
		},
		MinRate: opts.Automation.MinRate,
		MaxRate: opts.Automation.MaxRate,
		Metrics: opts.Metrics,
		Logger:  logger,
	})
	submitter.SetAutomation(scheduler)

	verificationWorker, err := worker.NewVerificationWorker(verifier, opts.Automation.VerificationInterval, logger)
	if err != nil {
		return nil, err
	}
	balanceWorker, err := worker.NewBalanceWorker(registry, opts.Automation.BalanceInterval, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		store:     opts.Store,
		chain:     opts.Chain,
		oracle:    opts.Oracle,
		registry:  registry,
		sessions:  sessions,
		history:   history,
		submitter: submitter,
		verifier:  verifier,
		scheduler: scheduler,
		workers:   []*worker.PollWorker{verificationWorker, balanceWorker},
		bus:       bus,
		metrics:   opts.Metrics,
		logger:    logger.WithComponent("app"),
	}, nil
}

// Start loads the history and starts the background workers
func (a *App) Start(ctx context.Context) error {
	if err := a.history.Load(ctx); err != nil {
		return err
	}
	for _, w := range a.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	a.logger.WithField("history", a.history.Len()).Info("automator started")
	return nil
}

// Shutdown stops every betting loop and worker. In-flight submissions get
// until ctx ends to finish.
func (a *App) Shutdown(ctx context.Context) error {
	schedErr := a.scheduler.Shutdown(ctx)
	for _, w := range a.workers {
		if err := w.Stop(ctx); err != nil {
			a.logger.WithError(err).Warn("worker did not stop cleanly")
		}
	}
	a.logger.Info("automator stopped")
	return schedErr
}

// Notifications is the bus user-visible events are published on
func (a *App) Notifications() *notify.Bus { return a.bus }

// Metrics returns the collectors, possibly nil
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// IsUnlocked reports whether the wallet collection is open
func (a *App) IsUnlocked() bool { return a.registry.IsUnlocked() }

// Unlock opens the wallet collection with passphrase
func (a *App) Unlock(ctx context.Context, passphrase string) error {
	return a.registry.Unlock(ctx, passphrase)
}

// Lock stops every betting loop, then forgets the passphrase and the decrypted keys
func (a *App) Lock() {
	if n := a.scheduler.StopAll(); n > 0 {
		a.logger.WithField("stopped", n).Info("automation stopped on lock")
	}
	a.registry.Lock()
}

// Reset stops and forgets all automation and deletes the persisted wallet
// collection. The transaction history is kept.
func (a *App) Reset(ctx context.Context) error {
	if err := a.registry.Reset(ctx); err != nil {
		return err
	}
	a.scheduler.RemoveAll()
	return nil
}

// Wallets lists every wallet with its automation settings
func (a *App) Wallets() ([]WalletStatus, error) {
	wallets, err := a.registry.List()
	if err != nil {
		return nil, err
	}
	out := make([]WalletStatus, len(wallets))
	for i, w := range wallets {
		out[i] = a.status(w)
	}
	return out, nil
}

// Wallet returns one wallet with its automation settings
func (a *App) Wallet(id string) (WalletStatus, error) {
	w, err := a.registry.Get(id)
	if err != nil {
		return WalletStatus{}, err
	}
	return a.status(w), nil
}

// CreateWallet generates a new game wallet
func (a *App) CreateWallet(ctx context.Context, name string) (WalletStatus, error) {
	w, err := a.registry.Create(ctx, name)
	if err != nil {
		return WalletStatus{}, err
	}
	a.bus.Publish(notify.Notification{
		Level:    notify.LevelSuccess,
		Title:    "Wallet created",
		Message:  fmt.Sprintf("%s (%s)", w.Name, w.Address),
		WalletID: w.ID,
	})
	return a.status(w), nil
}

// DeleteWallet removes the wallet from the collection, then its loop and
// settings. A failed delete leaves the automation untouched.
func (a *App) DeleteWallet(ctx context.Context, id string) error {
	if err := a.registry.Delete(ctx, id); err != nil {
		return err
	}
	a.scheduler.Remove(id)
	return nil
}

// ExportKey returns the private key of a wallet after re-checking passphrase
func (a *App) ExportKey(id, passphrase string) (string, error) {
	return a.registry.ExportKey(id, passphrase)
}

// StartAutomation starts the betting loop of a wallet
func (a *App) StartAutomation(id string) (types.AutomationConfig, error) {
	return a.scheduler.Start(id)
}

// StopAutomation stops the betting loop of a wallet
func (a *App) StopAutomation(id string) (types.AutomationConfig, error) {
	if _, err := a.registry.Get(id); err != nil {
		return types.AutomationConfig{}, err
	}
	return a.scheduler.Stop(id), nil
}

// UpdateAutomation changes the rate, bet size and game of a wallet
func (a *App) UpdateAutomation(id string, rate int, betSize decimal.Decimal, game string) (types.AutomationConfig, error) {
	return a.scheduler.UpdateConfig(id, rate, betSize, game)
}

// Automation returns the settings of a wallet
func (a *App) Automation(id string) (types.AutomationConfig, error) {
	if _, err := a.registry.Get(id); err != nil {
		return types.AutomationConfig{}, err
	}
	return a.scheduler.Config(id), nil
}

// History returns the bet history, newest first
func (a *App) History() []types.TransactionRecord {
	return a.history.List()
}

// Verify checks the outcome of hash right away
func (a *App) Verify(ctx context.Context, hash string) (types.VerificationState, error) {
	return a.verifier.ForceCheck(ctx, hash)
}

// Health reports upstream statistics and worker state
func (a *App) Health() Health {
	h := Health{
		Unlocked: a.registry.IsUnlocked(),
		Running:  len(a.scheduler.Running()),
		History:  a.history.Len(),
	}
	if r, ok := a.chain.(healthReporter); ok {
		h.Relay = r.Health()
	}
	if r, ok := a.oracle.(healthReporter); ok {
		h.Oracle = r.Health()
	}
	for _, w := range a.workers {
		h.Workers = append(h.Workers, w.GetStatus())
	}
	return h
}

// Ping checks the persistence backend
func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.store.Ping(ctx)
}

func (a *App) status(w types.WalletRecord) WalletStatus {
	return WalletStatus{
		WalletView: w.View(),
		Automation: a.scheduler.Config(w.ID),
	}
}
