package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider not found")
	ErrRequestRejected     = errors.New("user rejected the account request")
	ErrUserRejected        = errors.New("user rejected the transaction")
	ErrUnknownAccount      = errors.New("account is not managed by the provider")
)

// ConnectionFailedError wraps any provider failure during Connect.
type ConnectionFailedError struct {
	Message string
	Err     error
}

func (e *ConnectionFailedError) Error() string {
	return "wallet connection failed: " + e.Message
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// Signer is a signing identity bound to one account.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Provider is the wallet surface the console depends on: an account request
// and an account-change notification stream.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(addr common.Address) (Signer, error)
	// SubscribeAccounts delivers the full account list on every change.
	// The returned func unsubscribes and closes the channel.
	SubscribeAccounts() (<-chan []common.Address, func())
}

// Connector obtains a signer from a Provider.
type Connector struct {
	provider Provider
}

func NewConnector(p Provider) *Connector {
	return &Connector{provider: p}
}

// Available reports whether a provider is installed.
func (c *Connector) Available() bool {
	return c != nil && c.provider != nil
}

// Connect requests account access and returns a signer for the first account.
func (c *Connector) Connect(ctx context.Context) (Signer, error) {
	if !c.Available() {
		return nil, ErrProviderUnavailable
	}
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, &ConnectionFailedError{Message: err.Error(), Err: err}
	}
	if len(accounts) == 0 {
		return nil, &ConnectionFailedError{Message: "no accounts available"}
	}
	signer, err := c.provider.Signer(accounts[0])
	if err != nil {
		return nil, &ConnectionFailedError{Message: err.Error(), Err: err}
	}
	return signer, nil
}

// Watch forwards account-change notifications to fn until ctx is done.
func (c *Connector) Watch(ctx context.Context, fn func([]common.Address)) error {
	if !c.Available() {
		return ErrProviderUnavailable
	}
	ch, unsubscribe := c.provider.SubscribeAccounts()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case accounts, ok := <-ch:
			if !ok {
				return fmt.Errorf("account stream closed")
			}
			fn(accounts)
		}
	}
}
