package ledger

import (
	"fmt"
	"strings"

	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
)

// maxPeriodYears keeps the installment count well inside int64.
const maxPeriodYears = 1000

// LoanApplication is an unvalidated request to lend money. A field whose Valid flag is
// false was not supplied.
type LoanApplication struct {
	CustomerID        string
	Principal         decimal.NullDecimal
	AnnualRatePercent decimal.NullDecimal
	PeriodYears       decimal.NullDecimal
}

// PaymentRequest is an unvalidated payment against a loan.
type PaymentRequest struct {
	Amount decimal.NullDecimal
	Type   string
}

// ValidateLoanApplication checks that every field is present and in range and returns
// the trimmed customer id with the loan terms.
func ValidateLoanApplication(app LoanApplication) (string, models.LoanTerms, error) {
	customerID := strings.TrimSpace(app.CustomerID)
	if customerID == "" {
		return "", models.LoanTerms{}, fmt.Errorf("%w: customer_id is required", models.ErrInvalidLoanTerms)
	}
	if !app.Principal.Valid {
		return "", models.LoanTerms{}, fmt.Errorf("%w: loan_amount is required", models.ErrInvalidLoanTerms)
	}
	if !app.AnnualRatePercent.Valid {
		return "", models.LoanTerms{}, fmt.Errorf("%w: interest_rate_yearly is required", models.ErrInvalidLoanTerms)
	}
	if !app.PeriodYears.Valid {
		return "", models.LoanTerms{}, fmt.Errorf("%w: loan_period_years is required", models.ErrInvalidLoanTerms)
	}
	if !app.PeriodYears.Decimal.IsInteger() {
		return "", models.LoanTerms{}, fmt.Errorf("%w: loan_period_years must be a whole number", models.ErrInvalidLoanTerms)
	}
	if app.PeriodYears.Decimal.LessThan(decimal.NewFromInt(1)) || app.PeriodYears.Decimal.GreaterThan(decimal.NewFromInt(maxPeriodYears)) {
		return "", models.LoanTerms{}, fmt.Errorf("%w: loan period must be between 1 and %d years", models.ErrInvalidLoanTerms, maxPeriodYears)
	}

	terms := models.LoanTerms{
		Principal:         app.Principal.Decimal,
		AnnualRatePercent: app.AnnualRatePercent.Decimal,
		PeriodYears:       app.PeriodYears.Decimal.IntPart(),
	}
	return customerID, terms, nil
}

// NewLoan validates app and derives the loan's EMI and total amount. The caller assigns
// the id and creation time.
func NewLoan(app LoanApplication) (*models.Loan, error) {
	customerID, terms, err := ValidateLoanApplication(app)
	if err != nil {
		return nil, err
	}

	derived, err := ComputeTerms(terms.Principal, terms.AnnualRatePercent, terms.PeriodYears)
	if err != nil {
		return nil, err
	}

	return &models.Loan{
		LoanTerms:   terms,
		CustomerID:  customerID,
		MonthlyEMI:  derived.MonthlyEMI,
		TotalAmount: derived.TotalAmount,
		Status:      models.LoanStatusActive,
	}, nil
}

// ValidatePayment returns the amount and type of req. A missing type defaults to EMI;
// any other label is accepted as given.
func ValidatePayment(req PaymentRequest) (decimal.Decimal, models.PaymentType, error) {
	if !req.Amount.Valid {
		return decimal.Zero, "", fmt.Errorf("%w: amount is required", models.ErrInvalidPayment)
	}
	if !req.Amount.Decimal.IsPositive() {
		return decimal.Zero, "", fmt.Errorf("%w: amount must be positive", models.ErrInvalidPayment)
	}

	paymentType := models.PaymentType(strings.TrimSpace(req.Type))
	if paymentType == "" {
		paymentType = models.PaymentTypeEMI
	}
	return req.Amount.Decimal, paymentType, nil
}
