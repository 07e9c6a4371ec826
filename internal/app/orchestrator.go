package app

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"parimutuel/internal/backend"
	"parimutuel/internal/contract"
	"parimutuel/internal/ether"
	"parimutuel/internal/journal"
	"parimutuel/internal/wallet"
)

// Action names one user-triggered operation.
type Action string

const (
	ActionConnect         Action = "connect"
	ActionDeposit         Action = "deposit"
	ActionPlaceBet        Action = "placeBet"
	ActionWithdraw        Action = "withdraw"
	ActionFinalizePayout  Action = "finalizePayout"
	ActionResolveOutcome  Action = "resolveOutcome"
	ActionFetchPayoutData Action = "fetchPayoutData"
	ActionRefreshBalances Action = "refreshBalances"
)

// Binder attaches a signer to the deployed contract.
type Binder func(wallet.Signer) contract.Client

// Backend is the betting backend surface the orchestrator uses.
type Backend interface {
	PlaceBet(ctx context.Context, req backend.PlaceBetRequest) error
	ResolveOutcome(ctx context.Context, outcome string) error
	GetPayoutData(ctx context.Context) (backend.PayoutData, error)
}

// Observer receives one call per finished action. result is "success" or a Kind.
type Observer interface {
	ObserveAction(action, result string)
}

type Options struct {
	Logger   *zap.Logger
	Journal  journal.Store
	Observer Observer
	Now      func() time.Time
}

// Orchestrator runs user actions against the wallet, contract and backend and
// owns the application State.
type Orchestrator struct {
	connector *wallet.Connector
	bind      Binder
	backend   Backend
	log       *zap.Logger
	journal   journal.Store
	observer  Observer
	now       func() time.Time

	mu       sync.Mutex
	state    State
	contract contract.Client
	inflight map[Action]bool
	subs     map[int]chan State
	nextSub  int
}

func New(connector *wallet.Connector, bind Binder, be Backend, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Journal == nil {
		opts.Journal = journal.NewMemoryStore(100)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		connector: connector,
		bind:      bind,
		backend:   be,
		log:       opts.Logger,
		journal:   opts.Journal,
		observer:  opts.Observer,
		now:       opts.Now,
		state:     initialState(),
		inflight:  make(map[Action]bool),
		subs:      make(map[int]chan State),
	}
}

// State returns a snapshot of the application state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe delivers a snapshot after every state change. Slow readers only
// see the latest snapshot. The returned func unsubscribes.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan State, 1)
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
}

// update mutates the state under lock and publishes the result.
func (o *Orchestrator) update(fn func(*State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.state)
	o.publishLocked()
}

func (o *Orchestrator) publishLocked() {
	snap := o.state.clone()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// binding returns the bound contract and a state snapshot.
func (o *Orchestrator) binding() (contract.Client, State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contract, o.state.clone()
}

func (o *Orchestrator) acquire(action Action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[action] {
		return false
	}
	o.inflight[action] = true
	o.state.InFlight = append(o.state.InFlight, action)
	o.publishLocked()
	return true
}

func (o *Orchestrator) release(action Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, action)
	kept := o.state.InFlight[:0]
	for _, a := range o.state.InFlight {
		if a != action {
			kept = append(kept, a)
		}
	}
	o.state.InFlight = kept
	o.publishLocked()
}

// result is what a successful action reports. An empty message leaves the
// current notification alone; warn reports a secondary failure.
type result struct {
	message string
	txHash  common.Hash
	warn    *ActionError
}

// run applies the single-flight guard, executes fn, and reports the outcome
// exactly once: notification, log, journal and observer.
func (o *Orchestrator) run(ctx context.Context, action Action, fn func(context.Context) (result, *ActionError)) error {
	if !o.acquire(action) {
		aerr := fail(action, KindBusy, "Please wait, the previous request is still in progress.")
		o.report(ctx, action, result{}, aerr)
		return aerr
	}
	defer o.release(action)

	res, aerr := fn(ctx)
	o.report(ctx, action, res, aerr)
	if aerr != nil {
		return aerr
	}
	return nil
}

func (o *Orchestrator) report(ctx context.Context, action Action, res result, aerr *ActionError) {
	snap := o.State()
	account := ""
	if snap.Session.Connected {
		account = snap.Session.Address.Hex()
	}

	entry := journal.Entry{
		Action:    string(action),
		Account:   account,
		CreatedAt: o.now().UTC(),
	}

	switch {
	case aerr != nil:
		o.notify(SeverityError, aerr.Message)
		o.log.Error("action failed",
			zap.String("action", string(action)),
			zap.String("account", account),
			zap.String("kind", string(aerr.Kind)),
			zap.String("message", aerr.Message),
			zap.Error(aerr.Err),
		)
		entry.Status = journal.StatusFailed
		entry.Kind = string(aerr.Kind)
		entry.Message = aerr.Message
		o.observe(action, string(aerr.Kind))
	default:
		if res.message != "" {
			o.notify(SeveritySuccess, res.message)
		}
		fields := []zap.Field{zap.String("action", string(action)), zap.String("account", account)}
		if res.txHash != (common.Hash{}) {
			fields = append(fields, zap.String("tx", res.txHash.Hex()))
			entry.TxHash = res.txHash.Hex()
		}
		o.log.Info("action succeeded", fields...)
		entry.Status = journal.StatusSucceeded
		entry.Message = res.message
		o.observe(action, "success")

		if w := res.warn; w != nil {
			o.notify(SeverityError, w.Message)
			o.log.Warn("action follow-up failed",
				zap.String("action", string(w.Action)),
				zap.String("kind", string(w.Kind)),
				zap.Error(w.Err),
			)
		}
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := o.journal.Append(jctx, entry); err != nil {
		o.log.Warn("journal append failed", zap.String("action", string(action)), zap.Error(err))
	}
}

func (o *Orchestrator) observe(action Action, res string) {
	if o.observer != nil {
		o.observer.ObserveAction(string(action), res)
	}
}

func (o *Orchestrator) notify(sev Severity, msg string) {
	o.update(func(s *State) {
		s.Notification = &Notification{Severity: sev, Message: msg, At: o.now()}
	})
}

// Dismiss clears the notification.
func (o *Orchestrator) Dismiss() {
	o.update(func(s *State) {
		s.Notification = nil
	})
}

// AccountsChanged applies an account-change notification from the wallet.
// An empty list disconnects the session. A new address replaces the session
// address but keeps the existing contract binding and its signer. A non-empty
// list while disconnected is ignored: only Connect establishes a session.
func (o *Orchestrator) AccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		o.update(func(s *State) {
			o.contract = nil
			notification := s.Notification
			*s = initialState()
			s.Notification = notification
			s.InFlight = inFlightList(o.inflight)
		})
		o.log.Info("wallet disconnected")
		return
	}

	addr := accounts[0]
	changed := false
	o.update(func(s *State) {
		if !s.Session.Connected || s.Session.Address == addr {
			return
		}
		s.Session.Address = addr
		changed = true
	})
	if changed {
		o.log.Info("wallet account changed", zap.String("account", addr.Hex()))
	}
}

func inFlightList(m map[Action]bool) []Action {
	out := make([]Action, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	return out
}

// Connect requests the wallet account, binds the contract, reads the owner
// and refreshes balances.
func (o *Orchestrator) Connect(ctx context.Context) error {
	return o.run(ctx, ActionConnect, func(ctx context.Context) (result, *ActionError) {
		signer, err := o.connector.Connect(ctx)
		if err != nil {
			return result{}, connectFailure(err)
		}

		binding := o.bind(signer)
		owner, err := binding.Owner(ctx)
		if err != nil {
			return result{}, connectFailure(err)
		}

		o.update(func(s *State) {
			o.contract = binding
			s.Session = Session{
				Connected:  true,
				Address:    signer.Address(),
				Owner:      owner,
				OwnerKnown: true,
			}
			s.Bound = true
			s.Balances = zeroBalances()
		})

		return result{warn: o.refreshBalances(ctx)}, nil
	})
}

// RefreshBalances re-reads the deposited and withdrawable balances.
func (o *Orchestrator) RefreshBalances(ctx context.Context) error {
	return o.run(ctx, ActionRefreshBalances, func(ctx context.Context) (result, *ActionError) {
		if c, _ := o.binding(); c == nil {
			return result{}, fail(ActionRefreshBalances, KindValidationFailed, "Contract not loaded")
		}
		if w := o.refreshBalances(ctx); w != nil {
			return result{}, w
		}
		return result{}, nil
	})
}

func (o *Orchestrator) refreshBalances(ctx context.Context) *ActionError {
	if w := o.refreshDeposited(ctx); w != nil {
		return w
	}
	return o.refreshWithdrawable(ctx)
}

func (o *Orchestrator) refreshDeposited(ctx context.Context) *ActionError {
	c, snap := o.binding()
	if c == nil {
		return nil
	}
	bal, err := c.Balances(ctx, snap.Session.Address)
	if err != nil {
		aerr := contractFailure(ActionRefreshBalances, err)
		aerr.Message = "Failed to fetch user balance"
		return aerr
	}
	o.update(func(s *State) {
		s.Balances.Deposited = ether.FormatEther(bal)
	})
	return nil
}

func (o *Orchestrator) refreshWithdrawable(ctx context.Context) *ActionError {
	c, snap := o.binding()
	if c == nil {
		return nil
	}
	amount, err := c.BalancesFinalized(ctx, snap.Session.Address)
	if err != nil {
		aerr := contractFailure(ActionRefreshBalances, err)
		aerr.Message = "Failed to fetch withdrawable amount"
		return aerr
	}
	o.update(func(s *State) {
		s.Balances.Withdrawable = ether.FormatEther(amount)
	})
	return nil
}

// Deposit sends amount ETH to the pool.
func (o *Orchestrator) Deposit(ctx context.Context, amount string) error {
	return o.run(ctx, ActionDeposit, func(ctx context.Context) (result, *ActionError) {
		o.update(func(s *State) { s.Bet.Amount = amount })

		c, _ := o.binding()
		if c == nil {
			return result{}, fail(ActionDeposit, KindValidationFailed, "Contract not loaded")
		}
		wei, err := ether.ParseEther(amount)
		if err != nil {
			return result{}, &ActionError{Action: ActionDeposit, Kind: KindValidationFailed, Message: "Enter a valid deposit amount", Err: err}
		}

		tx, err := c.Deposit(ctx, wei)
		if err != nil {
			return result{}, contractFailure(ActionDeposit, err)
		}
		if _, err := tx.Wait(ctx); err != nil {
			return result{}, contractFailure(ActionDeposit, err)
		}

		o.update(func(s *State) { s.Bet.Amount = "" })
		return result{message: "Deposit successful!", txHash: tx.Hash(), warn: o.refreshDeposited(ctx)}, nil
	})
}

// PlaceBet checks the on-chain deposit covers the bet and submits it to the backend.
func (o *Orchestrator) PlaceBet(ctx context.Context, draft BetDraft) error {
	return o.run(ctx, ActionPlaceBet, func(ctx context.Context) (result, *ActionError) {
		o.update(func(s *State) { s.Bet = draft })

		c, snap := o.binding()
		if !snap.Session.Connected {
			return result{}, fail(ActionPlaceBet, KindValidationFailed, "Please connect your wallet")
		}
		if c == nil {
			return result{}, fail(ActionPlaceBet, KindValidationFailed, "Contract not loaded")
		}
		wei, err := ether.ParseEther(draft.Amount)
		if err != nil {
			return result{}, &ActionError{Action: ActionPlaceBet, Kind: KindValidationFailed, Message: "Enter a valid bet amount", Err: err}
		}
		if !ValidOutcome(draft.Outcome) {
			return result{}, fail(ActionPlaceBet, KindValidationFailed, "Select a team")
		}

		deposited, err := c.Balances(ctx, snap.Session.Address)
		if err != nil {
			return result{}, contractFailure(ActionPlaceBet, err)
		}
		o.update(func(s *State) { s.Balances.Deposited = ether.FormatEther(deposited) })
		if wei.Cmp(deposited) > 0 {
			return result{}, fail(ActionPlaceBet, KindInsufficientBalance, "Insufficient balance in contract. Please deposit first.")
		}

		err = o.backend.PlaceBet(ctx, backend.PlaceBetRequest{
			User:    snap.Session.Address.Hex(),
			Amount:  wei.String(),
			Outcome: draft.Outcome,
		})
		if err != nil {
			return result{}, backendFailure(ActionPlaceBet, "Failed to place bet", err)
		}

		o.update(func(s *State) { s.Bet = BetDraft{} })
		return result{message: "Bet placed successfully!"}, nil
	})
}

// Withdraw pulls the finalized balance out of the pool.
func (o *Orchestrator) Withdraw(ctx context.Context) error {
	return o.run(ctx, ActionWithdraw, func(ctx context.Context) (result, *ActionError) {
		c, snap := o.binding()
		if c == nil {
			return result{}, fail(ActionWithdraw, KindValidationFailed, "Contract not loaded")
		}
		if snap.WithdrawDisabled() {
			return result{}, fail(ActionWithdraw, KindValidationFailed, "No funds to withdraw")
		}

		tx, err := c.Withdraw(ctx)
		if err != nil {
			return result{}, contractFailure(ActionWithdraw, err)
		}
		if _, err := tx.Wait(ctx); err != nil {
			return result{}, contractFailure(ActionWithdraw, err)
		}

		o.update(func(s *State) { s.Balances.Withdrawable = "0" })
		warn := o.refreshWithdrawable(ctx)
		if warn == nil {
			warn = o.refreshDeposited(ctx)
		}
		return result{message: "Withdrawal successful!", txHash: tx.Hash(), warn: warn}, nil
	})
}

// FinalizePayout submits the payout table. Owner only.
func (o *Orchestrator) FinalizePayout(ctx context.Context, draft PayoutDraft) error {
	return o.run(ctx, ActionFinalizePayout, func(ctx context.Context) (result, *ActionError) {
		o.update(func(s *State) { s.Payout = draft })

		c, snap := o.binding()
		if c == nil {
			return result{}, fail(ActionFinalizePayout, KindValidationFailed, "Contract not loaded")
		}
		if !snap.Session.IsOwner() {
			return result{}, fail(ActionFinalizePayout, KindNotOwner, "Only the owner can finalize the payout")
		}
		if draft.WinningOutcome == "" {
			return result{}, fail(ActionFinalizePayout, KindValidationFailed, "Enter winning outcome")
		}
		if draft.Winners == "" {
			return result{}, fail(ActionFinalizePayout, KindValidationFailed, "Enter winners' addresses")
		}
		if draft.Amounts == "" {
			return result{}, fail(ActionFinalizePayout, KindValidationFailed, "Enter amounts")
		}

		winners, aerr := parseWinners(draft.Winners)
		if aerr != nil {
			return result{}, aerr
		}
		amounts, aerr := parsePayoutAmounts(draft.Amounts)
		if aerr != nil {
			return result{}, aerr
		}

		tx, err := c.FinalizePayout(ctx, draft.WinningOutcome, winners, amounts)
		if err != nil {
			return result{}, contractFailure(ActionFinalizePayout, err)
		}
		if _, err := tx.Wait(ctx); err != nil {
			return result{}, contractFailure(ActionFinalizePayout, err)
		}
		return result{message: "Payout finalized successfully!", txHash: tx.Hash(), warn: o.refreshWithdrawable(ctx)}, nil
	})
}

func parseWinners(field string) ([]common.Address, *ActionError) {
	parts := ether.SplitList(field)
	out := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		if !common.IsHexAddress(p) {
			return nil, fail(ActionFinalizePayout, KindValidationFailed, "Invalid winner address: "+quoteEmpty(p))
		}
		out = append(out, common.HexToAddress(p))
	}
	return out, nil
}

func parsePayoutAmounts(field string) ([]*big.Int, *ActionError) {
	parts := ether.SplitList(field)
	out := make([]*big.Int, 0, len(parts))
	for _, p := range parts {
		wei, err := ether.ParseEtherAllowZero(p)
		if err != nil {
			return nil, &ActionError{Action: ActionFinalizePayout, Kind: KindValidationFailed, Message: "Invalid payout amount: " + quoteEmpty(p), Err: err}
		}
		out = append(out, wei)
	}
	return out, nil
}

func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}

// ResolveOutcome asks the backend to settle the game. Owner only.
func (o *Orchestrator) ResolveOutcome(ctx context.Context, outcome string) error {
	return o.run(ctx, ActionResolveOutcome, func(ctx context.Context) (result, *ActionError) {
		o.update(func(s *State) { s.Resolve.Outcome = outcome })

		_, snap := o.binding()
		if !ValidOutcome(outcome) {
			return result{}, fail(ActionResolveOutcome, KindValidationFailed, "Select a winning outcome")
		}
		if !snap.Session.IsOwner() {
			return result{}, fail(ActionResolveOutcome, KindNotOwner, "Only the owner can resolve the outcome")
		}

		if err := o.backend.ResolveOutcome(ctx, outcome); err != nil {
			return result{}, backendFailure(ActionResolveOutcome, "Failed to resolve outcome", err)
		}
		return result{message: "Outcome resolved successfully!"}, nil
	})
}

// FetchPayoutData fills the payout draft from the backend.
func (o *Orchestrator) FetchPayoutData(ctx context.Context) error {
	return o.run(ctx, ActionFetchPayoutData, func(ctx context.Context) (result, *ActionError) {
		data, err := o.backend.GetPayoutData(ctx)
		if err != nil {
			aerr := backendFailure(ActionFetchPayoutData, "Failed to fetch payout data", err)
			if aerr.Kind != KindBackendRejected {
				aerr.Message = "Failed to fetch payout data"
			}
			return result{}, aerr
		}
		if !data.Valid() {
			return result{}, fail(ActionFetchPayoutData, KindValidationFailed, "Invalid data received")
		}
		amounts, err := data.AmountsWei()
		if err != nil {
			return result{}, &ActionError{Action: ActionFetchPayoutData, Kind: KindValidationFailed, Message: "Invalid data received", Err: err}
		}

		display := make([]string, 0, len(amounts))
		for _, a := range amounts {
			display = append(display, ether.FormatEther(a))
		}
		o.update(func(s *State) {
			s.Payout = PayoutDraft{
				WinningOutcome: data.Outcome.Outcome,
				Winners:        ether.JoinList(data.Winners),
				Amounts:        ether.JoinList(display),
			}
		})
		return result{}, nil
	})
}
