package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"parimutuel/internal/wallet"
)

const defaultReceiptPoll = 2 * time.Second

// Backend is a dialed RPC connection to the pool contract. Bind attaches a
// signer to produce a Client.
type Backend struct {
	client       *ethclient.Client
	abi          abi.ABI
	address      common.Address
	pollInterval time.Duration
}

type BackendConfig struct {
	RPCURL              string
	ContractAddress     string
	ReceiptPollInterval time.Duration
}

func Dial(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := ParseABI()
	if err != nil {
		cli.Close()
		return nil, err
	}

	poll := cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = defaultReceiptPoll
	}

	return &Backend{
		client:       cli,
		abi:          parsedABI,
		address:      common.HexToAddress(cfg.ContractAddress),
		pollInterval: poll,
	}, nil
}

// ParseABI parses BettingABI.
func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(BettingABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

func (b *Backend) Address() common.Address {
	return b.address
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return id, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := b.client.BlockNumber(ctx)
	return err
}

func (b *Backend) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Bind returns a contract client whose transactions are signed by signer.
func (b *Backend) Bind(signer wallet.Signer) *EthClient {
	return &EthClient{
		backend:  b,
		contract: bind.NewBoundContract(b.address, b.abi, b.client, b.client, b.client),
		signer:   signer,
	}
}

// EthClient is the pool contract bound to one signer.
type EthClient struct {
	backend  *Backend
	contract *bind.BoundContract
	signer   wallet.Signer
}

func (c *EthClient) Deposit(ctx context.Context, value *big.Int) (PendingTx, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("deposit value must be positive")
	}
	return c.transact(ctx, value, methodDeposit)
}

func (c *EthClient) Withdraw(ctx context.Context) (PendingTx, error) {
	return c.transact(ctx, nil, methodWithdraw)
}

func (c *EthClient) FinalizePayout(ctx context.Context, outcome string, winners []common.Address, amounts []*big.Int) (PendingTx, error) {
	return c.transact(ctx, nil, methodFinalizePayout, outcome, winners, amounts)
}

func (c *EthClient) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (PendingTx, error) {
	opts, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	opts.Value = value

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return nil, Classify(fmt.Errorf("%s tx: %w", method, err))
	}
	return &ethPendingTx{tx: tx, backend: c.backend}, nil
}

func (c *EthClient) Balances(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, methodBalances, account)
}

func (c *EthClient) BalancesFinalized(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, methodBalancesFinalized, account)
}

func (c *EthClient) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, methodOwner); err != nil {
		return common.Address{}, Classify(fmt.Errorf("owner call: %w", err))
	}
	if len(out) == 0 {
		return common.Address{}, &UnknownError{Err: errors.New("owner call returned no data")}
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *EthClient) callUint(ctx context.Context, method string, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, method, account); err != nil {
		return nil, Classify(fmt.Errorf("%s call: %w", method, err))
	}
	if len(out) == 0 {
		return nil, &UnknownError{Err: fmt.Errorf("%s call returned no data", method)}
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *EthClient) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: c.signer.Address()}
}

type ethPendingTx struct {
	tx      *types.Transaction
	backend *Backend
}

func (p *ethPendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

// Wait blocks until the transaction is mined. A failed receipt is replayed
// against the mined block to recover the revert reason.
func (p *ethPendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := WaitForReceipt(ctx, p.backend.client, p.tx, p.backend.pollInterval)
	if err != nil {
		return nil, &UnknownError{Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, p.replayRevert(ctx, receipt)
	}
	return receipt, nil
}

func (p *ethPendingTx) replayRevert(ctx context.Context, receipt *types.Receipt) error {
	from, err := types.Sender(types.LatestSignerForChainID(p.tx.ChainId()), p.tx)
	if err != nil {
		return &RevertedError{}
	}
	_, err = p.backend.client.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    p.tx.To(),
		Gas:   p.tx.Gas(),
		Value: p.tx.Value(),
		Data:  p.tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return &RevertedError{}
	}
	var reverted *RevertedError
	if classified := Classify(err); errors.As(classified, &reverted) {
		return reverted
	}
	return &RevertedError{}
}

// WaitForReceipt polls until the transaction is mined or ctx is cancelled.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = defaultReceiptPoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
