package server

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"parimutuel/internal/app"
)

// stateView is the JSON form of app.State served by /api/state and pushed over /ws.
type stateView struct {
	Connected        bool              `json:"connected"`
	Address          string            `json:"address,omitempty"`
	Owner            string            `json:"owner,omitempty"`
	IsOwner          bool              `json:"isOwner"`
	ContractLoaded   bool              `json:"contractLoaded"`
	Deposited        string            `json:"deposited"`
	Withdrawable     string            `json:"withdrawable"`
	WithdrawDisabled bool              `json:"withdrawDisabled"`
	Bet              betView           `json:"bet"`
	Payout           payoutView        `json:"payout"`
	ResolveOutcome   string            `json:"resolveOutcome"`
	Notification     *notificationView `json:"notification,omitempty"`
	InFlight         []string          `json:"inFlight"`
}

type betView struct {
	Amount  string `json:"amount"`
	Outcome string `json:"outcome"`
}

type payoutView struct {
	WinningOutcome string `json:"winningOutcome"`
	Winners        string `json:"winners"`
	Amounts        string `json:"amounts"`
}

type notificationView struct {
	Tag     string    `json:"tag"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func newStateView(st app.State) stateView {
	v := stateView{
		Connected:        st.Session.Connected,
		IsOwner:          st.OwnerPanels(),
		ContractLoaded:   st.Bound,
		Deposited:        st.Balances.Deposited,
		Withdrawable:     st.Balances.Withdrawable,
		WithdrawDisabled: st.WithdrawDisabled(),
		Bet:              betView{Amount: st.Bet.Amount, Outcome: st.Bet.Outcome},
		Payout: payoutView{
			WinningOutcome: st.Payout.WinningOutcome,
			Winners:        st.Payout.Winners,
			Amounts:        st.Payout.Amounts,
		},
		ResolveOutcome: st.Resolve.Outcome,
		InFlight:       make([]string, 0, len(st.InFlight)),
	}
	if st.Session.Connected {
		v.Address = st.Session.Address.Hex()
	}
	if st.Session.OwnerKnown {
		v.Owner = st.Session.Owner.Hex()
	}
	if n := st.Notification; n != nil {
		v.Notification = &notificationView{Tag: n.Tag(), Message: n.Message, At: n.At}
	}
	for _, a := range st.InFlight {
		v.InFlight = append(v.InFlight, string(a))
	}
	return v
}

// pageData feeds templates/index.html.
type pageData struct {
	State     app.State
	Outcomes  []string
	Accounts  []common.Address
	HasWallet bool
}

// Busy is used by the template to disable a submit button while its action runs.
func (p pageData) Busy(action string) bool {
	return p.State.Busy(app.Action(action))
}
