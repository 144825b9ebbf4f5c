package core

import (
	"github.com/shopspring/decimal"
)

const MonetaryPrecision int32 = 8 // 8 decimal places for payment amounts

// RoundAmount rounds a to MonetaryPrecision.
func RoundAmount(a Amount) Amount {
	return a.Round(MonetaryPrecision)
}

// ParseAmount parses a decimal string into a rounded Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return RoundAmount(d), nil
}

// RerollPrice returns the cost of moving a trait from currentWeight to targetWeight.
//
// Formula: base * currentWeight / targetWeight, rounded to MonetaryPrecision.
//
// For a fixed current weight the price strictly decreases as the target weight
// grows, so landing on a rarer (lower-weight) asset always costs more. Weights
// must be at least 1.
func RerollPrice(base Amount, currentWeight, targetWeight uint64) (Amount, error) {
	if currentWeight < 1 || targetWeight < 1 {
		return Amount{}, ErrInvalidWeight
	}
	current := decimal.NewFromUint64(currentWeight)
	target := decimal.NewFromUint64(targetWeight)
	return base.Mul(current).DivRound(target, MonetaryPrecision), nil
}

// CheckPrecision rejects any amount carrying more than MonetaryPrecision
// decimal places. Payments are compared and settled exactly once they pass.
func CheckPrecision(amounts ...Amount) error {
	for _, a := range amounts {
		if !a.Equal(RoundAmount(a)) {
			return ErrAmountPrecision
		}
	}
	return nil
}
