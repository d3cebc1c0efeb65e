package royalty

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeRoyalty returns amount * percentage / 100.
//
// It does not trust callers: a negative amount or a percentage outside
// [0, 100] is rejected with ErrInvalidInput.
func ComputeRoyalty(amount decimal.Decimal, percentage int) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, invalid("amount", "must not be negative")
	}
	if err := validatePercentage(percentage); err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(decimal.NewFromInt(int64(percentage))).Div(hundred), nil
}

func validatePercentage(p int) error {
	if p < 0 || p > 100 {
		return invalid("royalty_percentage", "must be between 0 and 100")
	}
	return nil
}
