package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/slot-automator/internal/circuitbreaker"
	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/logging"
)

// RelayClient talks JSON-RPC to the relay, which forwards every call to the chain node.
// Balance reads go through a circuit breaker so a dead relay is not polled for
// every wallet every few seconds; nonce reads and broadcasts never do.
type RelayClient struct {
	client   *ethclient.Client
	timeout  time.Duration
	health   *HealthTracker
	balances *circuitbreaker.CircuitBreaker
}

// NewRelayClient dials the relay RPC endpoint. Dialing an HTTP endpoint does not
// open a connection, so an unreachable relay only shows up on first use.
func NewRelayClient(ctx context.Context, rpcURL string, timeout time.Duration, logger *logging.Logger) (*RelayClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("relay URL cannot be empty")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", rpcURL, err)
	}

	return &RelayClient{
		client:   client,
		timeout:  timeout,
		health:   NewHealthTracker("relay", rpcURL),
		balances: circuitbreaker.New(circuitbreaker.DefaultConfig("relay-balance"), logger),
	}, nil
}

func (c *RelayClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// BalanceAt returns the latest balance of account in wei
func (c *RelayClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var balance *big.Int
	err := c.balances.Execute(ctx, func(ctx context.Context) error {
		start := time.Now()
		var err error
		balance, err = c.client.BalanceAt(ctx, account, nil)
		c.health.Observe(start, err)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, apperrors.NewServiceUnavailableError("relay")
	}
	if err != nil {
		return nil, classifyRPCError("relay", err, false)
	}
	return balance, nil
}

// PendingNonceAt returns the pending nonce of account
func (c *RelayClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	nonce, err := c.client.PendingNonceAt(ctx, account)
	c.health.Observe(start, err)
	if err != nil {
		return 0, classifyRPCError("relay", err, false)
	}
	return nonce, nil
}

// SendRawTransaction submits a signed transaction with eth_sendRawTransaction.
// The raw RPC call is used so the hash the relay answers with is what gets recorded.
func (c *RelayClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var hash common.Hash
	err := c.client.Client().CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw))
	c.health.Observe(start, err)
	if err != nil {
		return "", classifyRPCError("relay", err, true)
	}
	return hash.Hex(), nil
}

// Health returns the relay endpoint statistics
func (c *RelayClient) Health() *EndpointHealth {
	h := c.health.GetHealth()
	h.Breaker = c.balances.Stats()
	if h.Breaker.State == circuitbreaker.StateOpen {
		h.IsHealthy = false
	}
	return h
}

// Close closes the underlying client
func (c *RelayClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
