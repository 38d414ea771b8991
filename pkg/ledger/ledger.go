// Package ledger derives the financial state of simple-interest loans from their terms
// and payment history. Everything here is a pure function of its arguments; fetching
// loans and payments is left to the caller.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
)

// installmentTolerance is the largest remainder that does not count as another
// installment. The stored EMI is a quotient rounded to 16 places, so n exact
// installments of the true EMI can miss n times the stored one by up to n*5e-17.
var installmentTolerance = decimal.New(1, -12)

// Transaction is a payment as it appears in a ledger.
type Transaction struct {
	ID     uuid.UUID          `json:"transaction_id"`
	Date   time.Time          `json:"date"`
	Amount decimal.Decimal    `json:"amount"`
	Type   models.PaymentType `json:"type"`
}

// View is the point-in-time financial picture of one loan. AmountPaid and
// BalanceAmount are rounded to cents; the loan terms are carried as stored.
type View struct {
	LoanID        uuid.UUID       `json:"loan_id"`
	CustomerID    string          `json:"customer_id"`
	Principal     decimal.Decimal `json:"principal"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	MonthlyEMI    decimal.Decimal `json:"monthly_emi"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	EMIsLeft      int64           `json:"emis_left"`
	Transactions  []Transaction   `json:"transactions"`
}

// Totals sums the payments and subtracts them from the loan's total amount.
// Neither figure is rounded. The balance goes negative on overpayment.
func Totals(loan *models.Loan, payments []*models.Payment) (paid, balance decimal.Decimal) {
	paid = decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return paid, loan.TotalAmount.Sub(paid)
}

// EMIsLeft is the number of installments still needed to clear balance, never
// below zero.
func EMIsLeft(loan *models.Loan, balance decimal.Decimal) (int64, error) {
	if balance.Sign() <= 0 {
		return 0, nil
	}
	if !loan.MonthlyEMI.IsPositive() {
		return 0, fmt.Errorf("%w: loan %s has a balance of %s but no monthly EMI", models.ErrArithmetic, loan.ID, balance)
	}
	emi := loan.MonthlyEMI
	n := balance.Div(emi).Floor()
	if balance.Sub(emi.Mul(n)).GreaterThan(installmentTolerance) {
		n = n.Add(decimal.NewFromInt(1))
	}
	return n.IntPart(), nil
}

// ComputeLedger builds the ledger of loan from its payments. payments must already be
// in chronological order; they are not re-sorted.
func ComputeLedger(loan *models.Loan, payments []*models.Payment) (*View, error) {
	if loan == nil {
		return nil, models.ErrLoanNotFound
	}

	paid, balance := Totals(loan, payments)
	left, err := EMIsLeft(loan, balance)
	if err != nil {
		return nil, err
	}

	transactions := make([]Transaction, len(payments))
	for i, p := range payments {
		transactions[i] = Transaction{
			ID:     p.ID,
			Date:   p.PaymentDate,
			Amount: p.Amount,
			Type:   p.Type,
		}
	}

	return &View{
		LoanID:        loan.ID,
		CustomerID:    loan.CustomerID,
		Principal:     loan.Principal,
		TotalAmount:   loan.TotalAmount,
		MonthlyEMI:    loan.MonthlyEMI,
		AmountPaid:    RoundCurrency(paid),
		BalanceAmount: RoundCurrency(balance),
		EMIsLeft:      left,
		Transactions:  transactions,
	}, nil
}
