package contract

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"parimutuel/internal/wallet"
)

// FakePool is an in-memory stand-in for the deployed pool, used in tests and
// when no RPC endpoint is configured.
type FakePool struct {
	mu        sync.Mutex
	owner     common.Address
	deposits  map[common.Address]*big.Int
	finalized map[common.Address]*big.Int
	nonce     uint64
	calls     []FakeCall
	failNext  error
}

// FakeCall records one mutating call that reached the pool.
type FakeCall struct {
	Method  string
	From    common.Address
	Value   *big.Int
	Outcome string
	Winners []common.Address
	Amounts []*big.Int
}

func NewFakePool(owner common.Address) *FakePool {
	return &FakePool{
		owner:     owner,
		deposits:  make(map[common.Address]*big.Int),
		finalized: make(map[common.Address]*big.Int),
	}
}

// Bind returns a client of the pool signed by signer.
func (p *FakePool) Bind(signer wallet.Signer) *FakeClient {
	return &FakeClient{pool: p, signer: signer}
}

// Calls returns the mutating calls seen so far.
func (p *FakePool) Calls() []FakeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FakeCall(nil), p.calls...)
}

// SetDeposit overwrites the deposited balance of account.
func (p *FakePool) SetDeposit(account common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposits[account] = new(big.Int).Set(amount)
}

func (p *FakePool) SetFinalized(account common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized[account] = new(big.Int).Set(amount)
}

// FailNext makes the next mutating call fail with err before it is applied.
func (p *FakePool) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// FakeClient is the FakePool bound to one signer.
type FakeClient struct {
	pool   *FakePool
	signer wallet.Signer
}

func (c *FakeClient) Deposit(ctx context.Context, value *big.Int) (PendingTx, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, errors.New("deposit value must be positive")
	}
	return c.apply(ctx, FakeCall{Method: methodDeposit, Value: new(big.Int).Set(value)}, func(p *FakePool, from common.Address) error {
		p.deposits[from] = new(big.Int).Add(balanceOf(p.deposits, from), value)
		return nil
	})
}

func (c *FakeClient) Withdraw(ctx context.Context) (PendingTx, error) {
	return c.apply(ctx, FakeCall{Method: methodWithdraw}, func(p *FakePool, from common.Address) error {
		if balanceOf(p.finalized, from).Sign() == 0 {
			return &RevertedError{Reason: "No funds to withdraw"}
		}
		p.finalized[from] = new(big.Int)
		return nil
	})
}

func (c *FakeClient) FinalizePayout(ctx context.Context, outcome string, winners []common.Address, amounts []*big.Int) (PendingTx, error) {
	call := FakeCall{
		Method:  methodFinalizePayout,
		Outcome: outcome,
		Winners: append([]common.Address(nil), winners...),
		Amounts: append([]*big.Int(nil), amounts...),
	}
	return c.apply(ctx, call, func(p *FakePool, from common.Address) error {
		if from != p.owner {
			return &RevertedError{Reason: "Only owner can call this function"}
		}
		if len(winners) != len(amounts) {
			return &RevertedError{Reason: "Mismatched input lengths"}
		}
		for i, w := range winners {
			p.finalized[w] = new(big.Int).Add(balanceOf(p.finalized, w), amounts[i])
		}
		return nil
	})
}

func (c *FakeClient) apply(ctx context.Context, call FakeCall, fn func(*FakePool, common.Address) error) (PendingTx, error) {
	if _, err := c.signer.TransactOpts(ctx); err != nil {
		return nil, Classify(err)
	}
	from := c.signer.Address()

	p := c.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		return nil, Classify(err)
	}
	if err := fn(p, from); err != nil {
		return nil, err
	}
	call.From = from
	p.calls = append(p.calls, call)
	p.nonce++
	hash := crypto.Keccak256Hash(from.Bytes(), []byte(call.Method), []byte(strconv.FormatUint(p.nonce, 10)))
	return fakePendingTx{hash: hash}, nil
}

func (c *FakeClient) Balances(_ context.Context, account common.Address) (*big.Int, error) {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return new(big.Int).Set(balanceOf(c.pool.deposits, account)), nil
}

func (c *FakeClient) BalancesFinalized(_ context.Context, account common.Address) (*big.Int, error) {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return new(big.Int).Set(balanceOf(c.pool.finalized, account)), nil
}

func (c *FakeClient) Owner(context.Context) (common.Address, error) {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.pool.owner, nil
}

func balanceOf(m map[common.Address]*big.Int, account common.Address) *big.Int {
	if v, ok := m[account]; ok {
		return v
	}
	return new(big.Int)
}

type fakePendingTx struct {
	hash common.Hash
}

func (f fakePendingTx) Hash() common.Hash {
	return f.hash
}

func (f fakePendingTx) Wait(context.Context) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: f.hash}, nil
}
