package app

import (
	"errors"
	"fmt"

	"parimutuel/internal/backend"
	"parimutuel/internal/contract"
	"parimutuel/internal/wallet"
)

// Kind classifies action failures.
type Kind string

const (
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindConnectionFailed    Kind = "ConnectionFailed"
	KindValidationFailed    Kind = "ValidationFailed"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindNotOwner            Kind = "NotOwner"
	KindUserRejected        Kind = "UserRejected"
	KindContractReverted    Kind = "ContractReverted"
	KindBackendRejected     Kind = "BackendRejected"
	KindBackendUnreachable  Kind = "BackendUnreachable"
	KindBusy                Kind = "Busy"
	KindUnknown             Kind = "Unknown"
)

const genericFailure = "An error occurred. Check console for details."

// ActionError is the single failure an action reports. Message is what the
// user sees; Err keeps the cause for the log.
type ActionError struct {
	Action  Action
	Kind    Kind
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func fail(action Action, kind Kind, msg string) *ActionError {
	return &ActionError{Action: action, Kind: kind, Message: msg}
}

func contractFailure(action Action, err error) *ActionError {
	err = contract.Classify(err)
	var reverted *contract.RevertedError
	switch {
	case errors.Is(err, contract.ErrUserRejected):
		return &ActionError{Action: action, Kind: KindUserRejected, Message: "Transaction was rejected by the user.", Err: err}
	case errors.As(err, &reverted) && reverted.Reason != "":
		return &ActionError{Action: action, Kind: KindContractReverted, Message: "Smart Contract Error: " + reverted.Reason, Err: err}
	case errors.As(err, &reverted):
		return &ActionError{Action: action, Kind: KindContractReverted, Message: genericFailure, Err: err}
	default:
		return &ActionError{Action: action, Kind: KindUnknown, Message: genericFailure, Err: err}
	}
}

func backendFailure(action Action, prefix string, err error) *ActionError {
	var rejected *backend.RejectedError
	switch {
	case errors.As(err, &rejected):
		return &ActionError{Action: action, Kind: KindBackendRejected, Message: prefix + ": " + rejected.Message, Err: err}
	case errors.Is(err, backend.ErrUnreachable):
		return &ActionError{Action: action, Kind: KindBackendUnreachable, Message: genericFailure, Err: err}
	default:
		return &ActionError{Action: action, Kind: KindUnknown, Message: genericFailure, Err: err}
	}
}

func connectFailure(err error) *ActionError {
	var cf *wallet.ConnectionFailedError
	switch {
	case errors.Is(err, wallet.ErrProviderUnavailable):
		return &ActionError{Action: ActionConnect, Kind: KindProviderUnavailable, Message: "Wallet provider not found", Err: err}
	case errors.As(err, &cf):
		return &ActionError{Action: ActionConnect, Kind: KindConnectionFailed, Message: "Error connecting wallet: " + cf.Message, Err: err}
	default:
		return &ActionError{Action: ActionConnect, Kind: KindConnectionFailed, Message: "Error connecting wallet: " + err.Error(), Err: err}
	}
}
