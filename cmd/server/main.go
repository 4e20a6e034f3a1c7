// Package main provides the API server entry point for the slot automator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/slot-automator/internal/adapter"
	"github.com/slot-automator/internal/api"
	"github.com/slot-automator/internal/app"
	"github.com/slot-automator/internal/config"
	"github.com/slot-automator/internal/contract"
	"github.com/slot-automator/internal/logging"
	"github.com/slot-automator/internal/metrics"
	"github.com/slot-automator/internal/retry"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/service"
	"github.com/slot-automator/internal/storage"
	"github.com/slot-automator/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logger := logging.InitGlobalLogger(logLevel, logFormat)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	logger.WithFields(map[string]interface{}{
		"storage":  cfg.Storage.Backend,
		"relay":    cfg.Chain.RelayURL,
		"chain_id": cfg.Chain.ChainID.String(),
		"contract": cfg.Chain.ContractAddress,
	}).Info("slot automator starting")

	// redis, postgres and clickhouse may still be starting next to us
	dialCfg := retry.DefaultConfig()
	dialCfg.MaxAttempts = cfg.Storage.ConnectAttempts
	dialCtx := logging.WithLogger(context.Background(), logger.WithComponent("startup"))

	var store storage.Store
	if _, err := retry.Do(dialCtx, dialCfg, func(context.Context, int) error {
		var err error
		store, err = storage.Open(cfg, logger)
		return err
	}); err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}
	defer store.Close()

	var ledger storage.Ledger = storage.NopLedger{}
	if cfg.Ledger.Enabled {
		var clickhouse *storage.ClickHouseDB
		if _, err := retry.Do(dialCtx, dialCfg, func(context.Context, int) error {
			var err error
			clickhouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
			return err
		}); err != nil {
			logger.WithError(err).Fatal("failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		ledger = storage.NewClickHouseLedger(clickhouse)
		logger.Info("bet ledger enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, err := adapter.NewRelayClient(ctx, cfg.Chain.RelayURL, cfg.Chain.RequestTimeout, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create relay client")
	}
	defer relay.Close()
	oracle := adapter.NewOracleClient(cfg.Chain.VerificationURL, cfg.Chain.RequestTimeout)

	slot, err := contract.NewSlot(cfg.Chain.ContractAddress)
	if err != nil {
		logger.WithError(err).Fatal("failed to bind slot contract")
	}

	automator, err := app.New(app.Options{
		Store:  store,
		Keys:   storage.NewKeys(cfg.Storage.KeyPrefix),
		Chain:  relay,
		Oracle: oracle,
		Ledger: ledger,
		Box:    secret.NewBox(secret.WithIterations(cfg.Security.KDFIterations)),
		Slot:   slot,
		Params: service.ChainParams{
			ChainID:  cfg.Chain.ChainID,
			GasPrice: cfg.Chain.GasPrice,
			GasLimit: cfg.Chain.GasLimit,
			TxValue:  types.EtherToWei(cfg.Chain.TxValue),
		},
		Automation: cfg.Automation,
		Metrics:    metrics.New(),
		Logger:     logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build automator")
	}
	if err := automator.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start automator")
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
	}, automator, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("server stopped unexpectedly")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server did not shut down cleanly")
	}
	if err := automator.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("in-flight submissions were abandoned")
	}
	cancel()

	logger.Info("server exited")
}
