package backend

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

type PlaceBetRequest struct {
	User    string `json:"user"`
	Amount  string `json:"amount"`
	Outcome string `json:"outcome"`
}

type resolveOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

// PayoutData is the getPayoutData response. Amounts are base-unit integers
// sent either as JSON strings or numbers.
type PayoutData struct {
	Outcome *OutcomeRecord `json:"outcome"`
	Winners []string       `json:"winners"`
	Amounts []json.Number  `json:"amounts"`
}

type OutcomeRecord struct {
	Outcome string `json:"outcome"`
}

// Valid reports whether outcome, winners and amounts were all present.
func (d PayoutData) Valid() bool {
	return d.Outcome != nil && d.Winners != nil && d.Amounts != nil
}

// AmountsWei converts the amounts to base-unit integers.
func (d PayoutData) AmountsWei() ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(d.Amounts))
	for _, n := range d.Amounts {
		v, err := toBaseUnits(n.String())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func toBaseUnits(s string) (*big.Int, error) {
	if v, ok := new(big.Int).SetString(s, 10); ok {
		return v, nil
	}
	// JS serialises large numbers in exponent form.
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return nil, fmt.Errorf("invalid base-unit amount %q", s)
	}
	return d.BigInt(), nil
}
