package adapter

import (
	"context"
	"errors"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	apperrors "github.com/slot-automator/internal/errors"
)

// ChainClient is the subset of node access the automator needs.
// Every call goes through the relay; nothing is retried here.
type ChainClient interface {
	// BalanceAt returns the latest native balance of account in wei
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)

	// PendingNonceAt returns the next nonce including pending transactions
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// SendRawTransaction broadcasts a signed transaction and returns the hash reported by the relay
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
}

// classifyRPCError maps a go-ethereum client error onto the service error taxonomy.
// A JSON-RPC error object from the relay becomes a submission error when submitting,
// anything else is a transport failure.
func classifyRPCError(service string, err error, submitting bool) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if submitting {
			return apperrors.NewSubmissionError(rpcErr.Error(), rpcErr.ErrorCode())
		}
		return apperrors.NewNetworkError(service, err)
	}

	if isTimeout(err) {
		return apperrors.NewNetworkTimeoutError(service, err)
	}
	return apperrors.NewNetworkError(service, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
