// Package ether converts between decimal ETH strings and 18-decimal base units.
package ether

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point scale of the chain's native unit.
const Decimals = 18

var (
	ErrEmptyAmount    = errors.New("amount is required")
	ErrInvalidAmount  = errors.New("amount is not a number")
	ErrNonPositive    = errors.New("amount must be positive")
	ErrNegative       = errors.New("amount must not be negative")
	ErrTooManyDecimal = errors.New("amount has more than 18 decimals")
)

// ParseEther converts a positive decimal ETH string into base units.
func ParseEther(s string) (*big.Int, error) {
	wei, err := parse(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() <= 0 {
		return nil, ErrNonPositive
	}
	return wei, nil
}

// ParseEtherAllowZero is ParseEther without the positivity requirement.
// Negative values are still rejected.
func ParseEtherAllowZero(s string) (*big.Int, error) {
	wei, err := parse(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() < 0 {
		return nil, ErrNegative
	}
	return wei, nil
}

func parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	// decimal accepts exponent notation, wallets do not.
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, ErrTooManyDecimal
	}
	return scaled.BigInt(), nil
}

// FormatEther renders base units as a decimal ETH string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// SplitList splits a comma-separated field and trims every element.
// Empty elements are preserved.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// JoinList is the inverse of SplitList for display.
func JoinList(items []string) string {
	return strings.Join(items, ", ")
}
