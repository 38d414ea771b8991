package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"expected %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// testLoan builds a loan the way NewLoan would, with an id and creation time.
func testLoan(t *testing.T, customerID, principal, rate string, years int64, createdAt time.Time) *models.Loan {
	t.Helper()
	terms, err := ComputeTerms(dec(principal), dec(rate), years)
	if err != nil {
		t.Fatalf("ComputeTerms: %v", err)
	}
	return &models.Loan{
		LoanTerms: models.LoanTerms{
			Principal:         dec(principal),
			AnnualRatePercent: dec(rate),
			PeriodYears:       years,
		},
		ID:          uuid.New(),
		CustomerID:  customerID,
		MonthlyEMI:  terms.MonthlyEMI,
		TotalAmount: terms.TotalAmount,
		Status:      models.LoanStatusActive,
		CreatedAt:   createdAt,
	}
}

func testPayment(loan *models.Loan, amount string, at time.Time) *models.Payment {
	return &models.Payment{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		Amount:      dec(amount),
		Type:        models.PaymentTypeEMI,
		PaymentDate: at,
	}
}
