package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

func NormalizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ValidateAmount rounds amount to MoneyScale and rejects anything that is
// not strictly positive afterwards.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := NormalizeMoney(amount)
	if !rounded.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return rounded, nil
}

func validateKey(customerID, storeID int64) error {
	if customerID <= 0 || storeID <= 0 {
		return fmt.Errorf("%w: customer=%d store=%d", ErrInvalidIdentifier, customerID, storeID)
	}
	return nil
}
