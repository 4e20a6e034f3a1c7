package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/slot-automator/internal/logging"
)

// BadgerStore keeps state in an embedded badger database.
// An empty directory keeps everything in memory.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if needed) a badger database in dir
func NewBadgerStore(dir string, logger *logging.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if _, err := os.Stat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.
		WithLogger(badgerLogger{logger.WithComponent("badger")}).
		// INFO is noisy on open and compaction
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get retrieves a value by key
func (s *BadgerStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

// Set stores a value under key
func (s *BadgerStore) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Delete removes key; deleting a missing key is not an error
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Ping reports whether the database is still open
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging into the service logger
type badgerLogger struct {
	l *logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{})   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...interface{}) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...interface{})    { b.l.Infof(format, args...) }
func (b badgerLogger) Debugf(format string, args ...interface{})   { b.l.Debugf(format, args...) }
