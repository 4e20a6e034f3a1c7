package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/notify"
	"github.com/slot-automator/internal/types"
)

type verifyFixture struct {
	verifier *Verifier
	history  *HistoryLog
	oracle   *fakeOracle
	notes    *recorder
	ledger   *captureLedger
}

func newVerifyFixture(t *testing.T, hashes ...string) *verifyFixture {
	t.Helper()
	history := NewHistoryLog(newMemStore(), historyKey, 100, nil)
	for _, h := range hashes {
		require.NoError(t, history.Prepend(context.Background(), record(h)))
	}
	oracle := newFakeOracle()
	notes := &recorder{}
	ledger := &captureLedger{}
	return &verifyFixture{
		verifier: NewVerifier(VerifierConfig{
			History:  history,
			Oracle:   oracle,
			Ledger:   ledger,
			Notifier: notes,
		}),
		history: history,
		oracle:  oracle,
		notes:   notes,
		ledger:  ledger,
	}
}

func TestSweepResolvesFirstPending(t *testing.T) {
	f := newVerifyFixture(t, "0xold", "0xnew")
	f.oracle.outcomes["0xnew"] = types.VerificationWon
	ctx := context.Background()

	hash, err := f.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xnew", hash)

	rec, _ := f.history.Get("0xnew")
	assert.Equal(t, types.VerificationWon, rec.Verification)
	assert.False(t, rec.Verifying)
	assert.NotZero(t, rec.LastVerificationAt)
	assert.Equal(t, types.VerificationWon, f.ledger.outcomes["0xnew"])

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)

	hash, err = f.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xold", hash)
	rec, _ = f.history.Get("0xold")
	assert.Equal(t, types.VerificationNoJackpot, rec.Verification)

	// nothing left
	hash, err = f.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestSweepFailureKeepsRecordPending(t *testing.T) {
	f := newVerifyFixture(t, "0xold", "0xstuck")
	f.oracle.failures["0xstuck"] = apperrors.NewNetworkError("oracle", assert.AnError)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		hash, err := f.verifier.Sweep(ctx)
		require.Error(t, err)
		assert.Equal(t, "0xstuck", hash)
	}
	assert.Equal(t, 3, f.oracle.callCount("0xstuck"))
	assert.Equal(t, 0, f.oracle.callCount("0xold"))

	rec, _ := f.history.Get("0xstuck")
	assert.Equal(t, types.VerificationPending, rec.Verification)
	assert.False(t, rec.Verifying)
	assert.NotZero(t, rec.LastVerificationAt)
}

func TestForceCheckUnknownHash(t *testing.T) {
	f := newVerifyFixture(t, "0x1")
	_, err := f.verifier.ForceCheck(context.Background(), "0xnope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestForceCheckOverwritesResolvedOutcome(t *testing.T) {
	f := newVerifyFixture(t, "0x1")
	ctx := context.Background()

	_, err := f.verifier.Sweep(ctx)
	require.NoError(t, err)
	rec, _ := f.history.Get("0x1")
	require.Equal(t, types.VerificationNoJackpot, rec.Verification)

	f.oracle.mu.Lock()
	f.oracle.outcomes["0x1"] = types.VerificationWon
	f.oracle.mu.Unlock()

	state, err := f.verifier.ForceCheck(ctx, "0x1")
	require.NoError(t, err)
	assert.Equal(t, types.VerificationWon, state)
	rec, _ = f.history.Get("0x1")
	assert.Equal(t, types.VerificationWon, rec.Verification)
}

func TestConcurrentForceChecksDoNotOverlap(t *testing.T) {
	f := newVerifyFixture(t, "0x1", "0x2")
	f.oracle.entered = make(chan string, 4)
	f.oracle.block = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.verifier.ForceCheck(ctx, "0x1")
		assert.NoError(t, err)
	}()

	select {
	case hash := <-f.oracle.entered:
		require.Equal(t, "0x1", hash)
	case <-time.After(2 * time.Second):
		t.Fatal("oracle not called")
	}

	_, err := f.verifier.ForceCheck(ctx, "0x1")
	assert.True(t, apperrors.IsConflict(err))

	// the sweep skips the record being verified
	sweepDone := make(chan string, 1)
	go func() {
		hash, _ := f.verifier.Sweep(ctx)
		sweepDone <- hash
	}()
	select {
	case hash := <-f.oracle.entered:
		assert.Equal(t, "0x2", hash)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not reach the oracle")
	}

	close(f.oracle.block)
	wg.Wait()
	assert.Equal(t, "0x2", <-sweepDone)
	assert.Equal(t, 1, f.oracle.callCount("0x1"))
}
