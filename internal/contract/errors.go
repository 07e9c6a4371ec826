package contract

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"parimutuel/internal/wallet"
)

// ErrUserRejected means the signer declined to sign.
var ErrUserRejected = errors.New("transaction rejected by signer")

// RevertedError is returned when the contract rejected the call. Reason is
// empty when the revert payload carried none.
type RevertedError struct {
	Reason string
}

func (e *RevertedError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// UnknownError preserves any other failure for diagnostics.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return "contract call failed: " + e.Err.Error()
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}

const revertPrefix = "execution reverted"

// Classify maps a raw signer/RPC error onto ErrUserRejected, *RevertedError or *UnknownError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var reverted *RevertedError
	var unknown *UnknownError
	if errors.Is(err, ErrUserRejected) || errors.As(err, &reverted) || errors.As(err, &unknown) {
		return err
	}
	if errors.Is(err, wallet.ErrUserRejected) {
		return ErrUserRejected
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := revertReason(dataErr.ErrorData()); ok {
			return &RevertedError{Reason: reason}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, revertPrefix); idx >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(revertPrefix):], ":"))
		return &RevertedError{Reason: reason}
	}
	return &UnknownError{Err: err}
}

func revertReason(data interface{}) (string, bool) {
	hexData, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}
