package wallet

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slot-automator/internal/contract"
	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/secret"
	"github.com/slot-automator/internal/session"
	"github.com/slot-automator/internal/storage"
)

const walletsKey = "test:game_wallets"

// fakeChain serves balances from a map; addresses in failing error out
type fakeChain struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	failing  map[common.Address]bool
	reads    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[common.Address]*big.Int),
		failing:  make(map[common.Address]bool),
	}
}

func (f *fakeChain) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failing[account] {
		return nil, apperrors.NewNetworkError("relay", errors.New("connection refused"))
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) SendRawTransaction(context.Context, []byte) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeChain) set(addr string, wei int64) {
	f.mu.Lock()
	f.balances[common.HexToAddress(addr)] = big.NewInt(wei)
	f.mu.Unlock()
}

func (f *fakeChain) fail(addr string) {
	f.mu.Lock()
	f.failing[common.HexToAddress(addr)] = true
	f.mu.Unlock()
}

// flakyStore wraps a store and fails writes on demand
type flakyStore struct {
	storage.Store
	failSet bool
	sets    int
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	s.sets++
	return s.Store.Set(ctx, key, value)
}

type fixture struct {
	registry *Registry
	store    *flakyStore
	box      *secret.Box
	sessions *session.Cache
	chain    *fakeChain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backing, err := storage.NewBadgerStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	box := secret.NewBox(secret.WithIterations(1000))
	slot, err := contract.NewSlot("0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	sessions := session.NewCache(box, slot, big.NewInt(2020))
	chain := newFakeChain()
	store := &flakyStore{Store: backing}

	return &fixture{
		registry: NewRegistry(Config{
			Store:    store,
			Key:      walletsKey,
			Box:      box,
			Sessions: sessions,
			Chain:    chain,
		}),
		store:    store,
		box:      box,
		sessions: sessions,
		chain:    chain,
	}
}

// reopen builds a second registry over the same persisted state
func (f *fixture) reopen() *Registry {
	return NewRegistry(Config{
		Store:    f.store,
		Key:      walletsKey,
		Box:      f.box,
		Sessions: f.sessions,
		Chain:    f.chain,
	})
}

func TestUnlockEmptyThenCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.registry.Unlock(ctx, "abc123"))
	assert.True(t, f.registry.IsUnlocked())

	wallets, err := f.registry.List()
	require.NoError(t, err)
	assert.Empty(t, wallets)

	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)
	assert.Equal(t, "Main", w.Name)
	assert.Equal(t, int64(0), w.TransactionCount)
	assert.True(t, w.TotalSent.IsZero())
	assert.True(t, w.TotalGasFees.IsZero())
	assert.NotEmpty(t, w.ID)

	wallets, err = f.registry.List()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, w.ID, wallets[0].ID)
}

func TestCreatedAddressMatchesEncryptedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))

	for i := 0; i < 3; i++ {
		w, err := f.registry.Create(ctx, "w")
		require.NoError(t, err)

		keyHex, err := f.box.DecryptString(w.EncryptedSecret, "pw")
		require.NoError(t, err)
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), w.Address)
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Unlock(context.Background(), "pw"))

	for _, name := range []string{"", "   "} {
		_, err := f.registry.Create(context.Background(), name)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	}
}

func TestOperationsRequireUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Create(ctx, "x")
	assert.True(t, apperrors.IsLocked(err))
	_, err = f.registry.List()
	assert.True(t, apperrors.IsLocked(err))
	assert.True(t, apperrors.IsLocked(f.registry.Delete(ctx, "x")))
	_, err = f.registry.Passphrase()
	assert.True(t, apperrors.IsLocked(err))
}

func TestUnlockPersistedCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	created, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)

	other := f.reopen()
	err = other.Unlock(ctx, "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
	assert.False(t, other.IsUnlocked())

	require.NoError(t, other.Unlock(ctx, "pw"))
	got, err := other.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Address, got.Address)
	assert.Equal(t, created.EncryptedSecret, got.EncryptedSecret)
}

func TestUnlockRejectsEmptyPassphrase(t *testing.T) {
	f := newFixture(t)
	err := f.registry.Unlock(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteEvictsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)

	_, err = f.sessions.GetOrCreate(w, "pw")
	require.NoError(t, err)
	require.Equal(t, 1, f.sessions.Len())

	require.NoError(t, f.registry.Delete(ctx, w.ID))
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.registry.Get(w.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.registry.Delete(ctx, w.ID)))
}

func TestFailedPersistRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "keep")
	require.NoError(t, err)

	f.store.failSet = true

	_, err = f.registry.Create(ctx, "lost")
	require.Error(t, err)
	err = f.registry.Delete(ctx, w.ID)
	require.Error(t, err)
	err = f.registry.RecordSubmission(ctx, w.ID, decimal.NewFromInt(5), decimal.NewFromInt(1))
	require.Error(t, err)

	wallets, err := f.registry.List()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, w.ID, wallets[0].ID)
	assert.Equal(t, int64(0), wallets[0].TransactionCount)
	assert.True(t, wallets[0].TotalSent.IsZero())
	assert.True(t, wallets[0].TotalGasFees.IsZero())
}

func TestRecordSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)

	amount := decimal.RequireFromString("12000000000000000")
	fee := decimal.RequireFromString("20000000000000000")
	require.NoError(t, f.registry.RecordSubmission(ctx, w.ID, amount, fee))
	require.NoError(t, f.registry.RecordSubmission(ctx, w.ID, amount, fee))

	got, err := f.registry.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TransactionCount)
	assert.True(t, got.TotalSent.Equal(amount.Mul(decimal.NewFromInt(2))))
	assert.Equal(t, "40000000000000000", got.TotalGasFees.String())
	assert.Equal(t, "40000000000000000", got.View().TotalGasFees)

	assert.True(t, apperrors.IsNotFound(f.registry.RecordSubmission(ctx, "missing", amount, fee)))
}

func TestLockClearsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)
	_, err = f.sessions.GetOrCreate(w, "pw")
	require.NoError(t, err)

	f.registry.Lock()
	assert.False(t, f.registry.IsUnlocked())
	assert.Equal(t, 0, f.sessions.Len())

	// persisted state survives a lock
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	wallets, err := f.registry.List()
	require.NoError(t, err)
	assert.Len(t, wallets, 1)
}

func TestResetDropsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)
	_, err = f.sessions.GetOrCreate(w, "pw")
	require.NoError(t, err)

	require.NoError(t, f.registry.Reset(ctx))
	assert.False(t, f.registry.IsUnlocked())
	assert.Equal(t, 0, f.sessions.Len())

	_, ok, err := f.store.Get(ctx, walletsKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// any passphrase opens the now empty store
	require.NoError(t, f.registry.Unlock(ctx, "another"))
	wallets, err := f.registry.List()
	require.NoError(t, err)
	assert.Empty(t, wallets)
}

func TestExportKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	w, err := f.registry.Create(ctx, "Main")
	require.NoError(t, err)

	keyHex, err := f.registry.ExportKey(w.ID, "pw")
	require.NoError(t, err)
	_, addr, err := contract.ParseKey(keyHex)
	require.NoError(t, err)
	assert.Equal(t, w.Address, addr.Hex())

	_, err = f.registry.ExportKey(w.ID, "nope")
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestRefreshBalancesBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))
	a, err := f.registry.Create(ctx, "a")
	require.NoError(t, err)
	b, err := f.registry.Create(ctx, "b")
	require.NoError(t, err)

	f.chain.set(a.Address, 1_000)
	f.chain.fail(b.Address)
	setsBefore := f.store.sets

	updated, err := f.registry.RefreshBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, setsBefore+1, f.store.sets)

	gotA, err := f.registry.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", gotA.Balance.String())
	gotB, err := f.registry.Get(b.ID)
	require.NoError(t, err)
	assert.True(t, gotB.Balance.IsZero())

	// nothing changed, nothing persisted
	updated, err = f.registry.RefreshBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, setsBefore+1, f.store.sets)
}

func TestRefreshBalancesWhileLocked(t *testing.T) {
	f := newFixture(t)
	updated, err := f.registry.RefreshBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, 0, f.chain.reads)
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Unlock(ctx, "pw"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.registry.Create(ctx, "w")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	other := f.reopen()
	require.NoError(t, other.Unlock(ctx, "pw"))
	wallets, err := other.List()
	require.NoError(t, err)
	assert.Len(t, wallets, 10)
}
