package ledger

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
	half    = decimal.New(5, -1)
)

// RoundCurrency rounds d to two decimal places with halves going up, the same as
// round(x*100)/100. -2.345 becomes -2.34, not -2.35.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Mul(hundred).Add(half).Floor().Mul(cent)
}
