package ledger

import (
	"fmt"

	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
)

// Terms holds the figures derived from a loan's principal, rate and period.
type Terms struct {
	MonthlyEMI    decimal.Decimal
	TotalAmount   decimal.Decimal
	TotalInterest decimal.Decimal
}

// ComputeTerms applies flat simple interest to the whole principal for the whole
// period and spreads the total evenly across the monthly installments.
//
//	total_interest = principal * years * rate / 100
//	total_amount   = principal + total_interest
//	monthly_emi    = total_amount / (years * 12)
//
// Results are not rounded.
func ComputeTerms(principal, annualRatePercent decimal.Decimal, periodYears int64) (Terms, error) {
	if !principal.IsPositive() {
		return Terms{}, fmt.Errorf("%w: principal must be positive", models.ErrInvalidLoanTerms)
	}
	if annualRatePercent.IsNegative() {
		return Terms{}, fmt.Errorf("%w: interest rate must not be negative", models.ErrInvalidLoanTerms)
	}
	if periodYears < 1 || periodYears > maxPeriodYears {
		return Terms{}, fmt.Errorf("%w: loan period must be between 1 and %d years", models.ErrInvalidLoanTerms, maxPeriodYears)
	}

	terms := models.LoanTerms{Principal: principal, AnnualRatePercent: annualRatePercent, PeriodYears: periodYears}
	interest := terms.Principal.Mul(decimal.NewFromInt(terms.PeriodYears)).Mul(terms.AnnualRatePercent).Mul(cent)
	total := terms.Principal.Add(interest)

	return Terms{
		MonthlyEMI:    total.Div(decimal.NewFromInt(terms.Installments())),
		TotalAmount:   total,
		TotalInterest: interest,
	}, nil
}
