package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/slot-automator/internal/contract"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/types"
)

// memStore is a map backed storage.Store
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) setFailing(v bool) {
	m.mu.Lock()
	m.failSet = v
	m.mu.Unlock()
}

// fakeRelay records every raw transaction and answers with its hash
type fakeRelay struct {
	mu       sync.Mutex
	chainID  *big.Int
	nonce    uint64
	nonceErr error
	sendErr  error
	sent     [][]byte
}

func (f *fakeRelay) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeRelay) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeRelay) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	tx, _, err := contract.DecodeRaw(raw, f.chainID)
	if err != nil {
		return "", err
	}
	f.sent = append(f.sent, raw)
	f.nonce++
	return tx.Hash().Hex(), nil
}

func (f *fakeRelay) lastSent(t *testing.T) []byte {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// recorder collects published notifications
type recorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification{}, r.items...)
}

// fakeOracle answers from a table; block, when set, is waited on before answering
type fakeOracle struct {
	mu       sync.Mutex
	outcomes map[string]types.VerificationState
	failures map[string]error
	calls    map[string]int
	entered  chan string
	block    chan struct{}
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		outcomes: make(map[string]types.VerificationState),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (o *fakeOracle) Check(ctx context.Context, hash string) (types.VerificationState, error) {
	o.mu.Lock()
	o.calls[hash]++
	entered, block := o.entered, o.block
	o.mu.Unlock()

	if entered != nil {
		entered <- hash
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failures[hash]; err != nil {
		return "", err
	}
	if state, ok := o.outcomes[hash]; ok {
		return state, nil
	}
	return types.VerificationNoJackpot, nil
}

func (o *fakeOracle) callCount(hash string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[hash]
}

type captureLedger struct {
	mu       sync.Mutex
	bets     []types.TransactionRecord
	outcomes map[string]types.VerificationState
}

func (l *captureLedger) RecordBet(_ context.Context, rec types.TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bets = append(l.bets, rec)
	return nil
}

func (l *captureLedger) RecordOutcome(_ context.Context, hash string, outcome types.VerificationState, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomes == nil {
		l.outcomes = make(map[string]types.VerificationState)
	}
	l.outcomes[hash] = outcome
	return nil
}
