package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/slot-automator/internal/types"
)

type balanceResult struct {
	id      string
	balance decimal.Decimal
}

// RefreshBalances reads every wallet balance concurrently and stores the ones
// that changed. A failed read leaves that wallet's cached balance alone; read
// failures are logged and counted, never returned. The collection is persisted
// only when at least one balance changed. It returns the number of updated wallets.
func (r *Registry) RefreshBalances(ctx context.Context) (int, error) {
	r.mu.Lock()
	if !r.unlocked || len(r.wallets) == 0 {
		r.mu.Unlock()
		return 0, nil
	}
	type target struct {
		id      string
		address common.Address
	}
	targets := make([]target, len(r.wallets))
	for i, w := range r.wallets {
		targets[i] = target{id: w.ID, address: common.HexToAddress(w.Address)}
	}
	r.mu.Unlock()

	results := make(chan balanceResult, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(id string, address common.Address) {
			defer wg.Done()
			balance, err := r.chain.BalanceAt(ctx, address)
			if err != nil {
				r.metrics.BalanceRefreshFailed()
				r.logger.WithWallet(id).WithError(err).Warn("balance refresh failed")
				return
			}
			results <- balanceResult{id: id, balance: decimal.NewFromBigInt(balance, 0)}
		}(t.id, t.address)
	}
	wg.Wait()
	close(results)

	r.mu.Lock()
	defer r.mu.Unlock()

	// the collection may have been locked or edited while reading
	if !r.unlocked {
		return 0, nil
	}

	previous := r.wallets
	next := append(r.wallets[:0:0], previous...)
	updated := 0
	for res := range results {
		idx := indexIn(next, res.id)
		if idx < 0 || next[idx].Balance.Equal(res.balance) {
			continue
		}
		next[idx].Balance = res.balance
		updated++
	}
	if updated == 0 {
		return 0, nil
	}

	r.wallets = next
	if err := r.persistLocked(ctx); err != nil {
		r.wallets = previous
		r.logger.WithError(err).Error("failed to persist refreshed balances")
		return 0, err
	}
	return updated, nil
}

func indexIn(wallets []types.WalletRecord, id string) int {
	for i, w := range wallets {
		if w.ID == id {
			return i
		}
	}
	return -1
}
