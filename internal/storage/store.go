// Package storage persists the encrypted wallet collection and the bet history.
//
// State is kept as a handful of string values under fixed keys, so every
// backend implements the same small key/value Store.
package storage

import (
	"context"
	"fmt"

	"github.com/slot-automator/internal/config"
	"github.com/slot-automator/internal/logging"
)

// Store is a string key/value store
type Store interface {
	// Get returns the value under key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Keys names the persisted values under a common prefix
type Keys struct {
	Wallets string
	History string
}

// NewKeys builds the wallet and history keys for prefix
func NewKeys(prefix string) Keys {
	return Keys{
		Wallets: prefix + ":game_wallets",
		History: prefix + ":transaction_history",
	}
}

// Open connects the backend selected in cfg.Storage
func Open(cfg *config.Config, logger *logging.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		store, err = NewBadgerStore(cfg.Storage.BadgerDir, logger)
	case config.BackendRedis:
		store, err = NewRedisStore(&cfg.Database.Redis)
	case config.BackendPostgres:
		store, err = NewPostgresStore(&cfg.Database.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
