package app

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcomes is the fixed set of selectable outcomes.
var Outcomes = []string{"Team A", "Team B"}

// ValidOutcome reports whether s is one of Outcomes.
func ValidOutcome(s string) bool {
	for _, o := range Outcomes {
		if o == s {
			return true
		}
	}
	return false
}

// Session is the wallet connection. Owner is read from the contract on connect.
type Session struct {
	Connected  bool
	Address    common.Address
	Owner      common.Address
	OwnerKnown bool
}

// IsOwner compares addresses in their 20-byte form, so checksum casing never matters.
func (s Session) IsOwner() bool {
	return s.Connected && s.OwnerKnown && s.Address == s.Owner
}

// Balances holds display values in ETH.
type Balances struct {
	Deposited    string
	Withdrawable string
}

func zeroBalances() Balances {
	return Balances{Deposited: "0", Withdrawable: "0"}
}

type BetDraft struct {
	Amount  string
	Outcome string
}

type PayoutDraft struct {
	WinningOutcome string
	Winners        string
	Amounts        string
}

type ResolveDraft struct {
	Outcome string
}

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is the single user-visible message; a newer one replaces it.
type Notification struct {
	Severity Severity
	Message  string
	At       time.Time
}

// Tag renders the severity the way the banner shows it.
func (n Notification) Tag() string {
	return strings.ToUpper(string(n.Severity))
}

// State is everything the page renders. Values returned by the orchestrator are copies.
type State struct {
	Session      Session
	Bound        bool
	Balances     Balances
	Bet          BetDraft
	Payout       PayoutDraft
	Resolve      ResolveDraft
	Notification *Notification
	InFlight     []Action
}

func initialState() State {
	return State{Balances: zeroBalances()}
}

// WalletPanels reports whether wallet-gated panels are visible.
func (s State) WalletPanels() bool {
	return s.Session.Connected
}

// OwnerPanels reports whether the finalize and resolve panels are visible.
func (s State) OwnerPanels() bool {
	return s.Session.IsOwner()
}

// WithdrawDisabled mirrors the withdraw guard.
func (s State) WithdrawDisabled() bool {
	return s.Balances.Withdrawable == "0"
}

// Busy reports whether action is in flight.
func (s State) Busy(action Action) bool {
	for _, a := range s.InFlight {
		if a == action {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	out := s
	if s.Notification != nil {
		n := *s.Notification
		out.Notification = &n
	}
	out.InFlight = append([]Action(nil), s.InFlight...)
	return out
}
