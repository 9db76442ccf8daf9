// Package split computes how much each participant of a room owes.
// Shares are never stored: weights change while a room is open, so the
// amount owed is recomputed from the current participant set on every
// read.
package split

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
)

// ErrInvalidWeight is returned when a weight or weight sum is not
// positive, or a weight exceeds the sum it is part of.
var ErrInvalidWeight = errors.New("invalid weight")

// Share returns round2(totalPrice * weight / totalWeight).
func Share(totalPrice decimal.Decimal, weight, totalWeight int) (decimal.Decimal, error) {
	if weight <= 0 || totalWeight <= 0 || weight > totalWeight {
		return decimal.Zero, fmt.Errorf("%w: weight=%d total=%d", ErrInvalidWeight, weight, totalWeight)
	}
	return totalPrice.
		Mul(decimal.NewFromInt(int64(weight))).
		Div(decimal.NewFromInt(int64(totalWeight))).
		Round(2), nil
}

// TotalWeight sums the weights of ps.
func TotalWeight(ps []model.Participant) int {
	total := 0
	for _, p := range ps {
		total += p.Weight
	}
	return total
}

// Shares computes every participant's share of totalPrice keyed by
// participant ID.
func Shares(totalPrice decimal.Decimal, ps []model.Participant) (map[string]decimal.Decimal, error) {
	totalWeight := TotalWeight(ps)
	out := make(map[string]decimal.Decimal, len(ps))
	for _, p := range ps {
		s, err := Share(totalPrice, p.Weight, totalWeight)
		if err != nil {
			return nil, err
		}
		out[p.ID] = s
	}
	return out, nil
}

// ShareOf returns the share owed by participant id within ps.
func ShareOf(totalPrice decimal.Decimal, ps []model.Participant, id string) (decimal.Decimal, error) {
	totalWeight := TotalWeight(ps)
	for _, p := range ps {
		if p.ID == id {
			return Share(totalPrice, p.Weight, totalWeight)
		}
	}
	return decimal.Zero, fmt.Errorf("participant %s not in set", id)
}

// ToBaseUnits converts a currency amount into the payment network's
// integer base unit (10^exp units per currency unit), truncating any
// remaining fraction.  It returns the decimal string the provider
// expects in the Amount field.
func ToBaseUnits(amount decimal.Decimal, exp int32) string {
	return amount.Shift(exp).Truncate(0).String()
}
