package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client abstracts the on-chain betting pool.
type Client interface {
	Deposit(ctx context.Context, value *big.Int) (PendingTx, error)
	Withdraw(ctx context.Context) (PendingTx, error)
	FinalizePayout(ctx context.Context, outcome string, winners []common.Address, amounts []*big.Int) (PendingTx, error)

	Balances(ctx context.Context, account common.Address) (*big.Int, error)
	BalancesFinalized(ctx context.Context, account common.Address) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
}

// PendingTx is a submitted transaction. Callers must Wait before treating
// the action as complete.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*types.Receipt, error)
}

// HealthChecker is implemented by clients backed by a live RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
