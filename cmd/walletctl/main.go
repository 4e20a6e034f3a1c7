// Package main provides walletctl, an operator CLI for the persisted wallet
// collection. It works directly against the configured store and never
// touches the chain.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slot-automator/internal/config"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/session"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/wallet"
)

const (
	programName   = "walletctl"
	passphraseEnv = "WALLET_PASSPHRASE"
)

var globalFlags = struct {
	debug      bool
	passphrase string
}{}

// env is what every subcommand works against
type env struct {
	cfg      *config.Config
	store    storage.Store
	keys     storage.Keys
	registry *wallet.Registry
	logger   *logging.Logger
}

func newEnv(cfg *config.Config, store storage.Store, logger *logging.Logger) *env {
	box := secret.NewBox(secret.WithIterations(cfg.Security.KDFIterations))
	keys := storage.NewKeys(cfg.Storage.KeyPrefix)
	return &env{
		cfg:   cfg,
		store: store,
		keys:  keys,
		registry: wallet.NewRegistry(wallet.Config{
			Store:    store,
			Key:      keys.Wallets,
			Box:      box,
			Sessions: session.NewCache(box, nil, cfg.Chain.ChainID),
			Logger:   logger,
		}),
		logger: logger,
	}
}

// passphrase takes the flag first, then the environment
func (e *env) passphrase() (string, error) {
	if globalFlags.passphrase != "" {
		return globalFlags.passphrase, nil
	}
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("passphrase required: use --passphrase or %s", passphraseEnv)
}

func (e *env) unlock(ctx context.Context) error {
	p, err := e.passphrase()
	if err != nil {
		return err
	}
	return e.registry.Unlock(ctx, p)
}

type envKey struct{}

func envFrom(cmd *cobra.Command) *env {
	e, _ := cmd.Context().Value(envKey{}).(*env)
	return e
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Inspect and manage the encrypted game wallet collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVarP(&globalFlags.passphrase, "passphrase", "p", "", "wallet passphrase (defaults to $"+passphraseEnv+")")

	var opened storage.Store
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// cost needs no configuration
		if cmd.Name() == "cost" {
			return nil
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Storage.Validate(); err != nil {
			return err
		}
		if err := cfg.Security.Validate(); err != nil {
			return err
		}

		level := logging.LevelWarn
		if globalFlags.debug {
			level = logging.LevelDebug
		}
		logger := logging.NewLogger(level, logging.FormatText).WithComponent(programName)
		logger.SetOutput(os.Stderr)

		store, err := storage.Open(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		opened = store
		cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, newEnv(cfg, store, logger)))
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if opened != nil {
			return opened.Close()
		}
		return nil
	}

	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(exportKeyCommand())
	rootCmd.AddCommand(historyCommand())
	rootCmd.AddCommand(resetCommand())
	rootCmd.AddCommand(costCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
