package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyedProvider is a Provider backed by locally held private keys. The first
// account in the list is the active one.
type KeyedProvider struct {
	chainID *big.Int

	mu        sync.Mutex
	keys      map[common.Address]*ecdsa.PrivateKey
	order     []common.Address
	connected bool
	locked    bool
	subs      map[int]chan []common.Address
	nextSub   int
}

func NewKeyedProvider(chainID *big.Int, hexKeys []string) (*KeyedProvider, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("at least one private key is required")
	}
	p := &KeyedProvider{
		chainID: new(big.Int).Set(chainID),
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(hexKeys)),
		subs:    make(map[int]chan []common.Address),
	}
	for _, hexKey := range hexKeys {
		key, err := parsePrivateKey(hexKey)
		if err != nil {
			return nil, err
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := p.keys[addr]; dup {
			continue
		}
		p.keys[addr] = key
		p.order = append(p.order, addr)
	}
	return p, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *KeyedProvider) RequestAccounts(_ context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		return nil, ErrRequestRejected
	}
	p.connected = true
	return append([]common.Address(nil), p.order...), nil
}

// Accounts returns the exposed accounts without prompting; empty when
// disconnected or locked.
func (p *KeyedProvider) Accounts() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exposedLocked()
}

// Configured returns every held account, active first, whatever the connection state.
func (p *KeyedProvider) Configured() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address(nil), p.order...)
}

func (p *KeyedProvider) exposedLocked() []common.Address {
	if !p.connected || p.locked {
		return []common.Address{}
	}
	return append([]common.Address(nil), p.order...)
}

func (p *KeyedProvider) Signer(addr common.Address) (Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	return &keyedSigner{provider: p, addr: addr, key: key}, nil
}

// Select makes addr the active account and notifies subscribers.
func (p *KeyedProvider) Select(addr common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := -1
	for i, a := range p.order {
		if a == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	reordered := make([]common.Address, 0, len(p.order))
	reordered = append(reordered, addr)
	reordered = append(reordered, p.order[:idx]...)
	reordered = append(reordered, p.order[idx+1:]...)
	p.order = reordered
	p.connected = true
	p.publishLocked()
	return nil
}

// Disconnect stops exposing accounts and notifies subscribers with an empty list.
func (p *KeyedProvider) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.publishLocked()
}

// Lock makes the provider refuse account requests and signatures.
func (p *KeyedProvider) Lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = true
	p.publishLocked()
}

func (p *KeyedProvider) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = false
	if p.connected {
		p.publishLocked()
	}
}

func (p *KeyedProvider) isLocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked
}

func (p *KeyedProvider) SubscribeAccounts() (<-chan []common.Address, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan []common.Address, 1)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// publishLocked delivers the latest account list, replacing any undelivered one.
func (p *KeyedProvider) publishLocked() {
	accounts := p.exposedLocked()
	for _, ch := range p.subs {
		select {
		case ch <- accounts:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- accounts:
			default:
			}
		}
	}
}

type keyedSigner struct {
	provider *KeyedProvider
	addr     common.Address
	key      *ecdsa.PrivateKey
}

func (s *keyedSigner) Address() common.Address {
	return s.addr
}

func (s *keyedSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.provider.isLocked() {
		return nil, ErrUserRejected
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.provider.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	sign := opts.Signer
	opts.Signer = func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if s.provider.isLocked() {
			return nil, ErrUserRejected
		}
		return sign(from, tx)
	}
	opts.Context = ctx
	return opts, nil
}
