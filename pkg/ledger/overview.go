package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
)

// LoanSummary condenses one loan's ledger for overview listings.
type LoanSummary struct {
	LoanID        uuid.UUID       `json:"loan_id"`
	CustomerID    string          `json:"customer_id"`
	Principal     decimal.Decimal `json:"principal"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	EMIAmount     decimal.Decimal `json:"emi_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	EMIsLeft      int64           `json:"emis_left"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CustomerLoanSummary is a LoanSummary labelled with its owner.
type CustomerLoanSummary struct {
	CustomerName string `json:"name"`
	LoanSummary
}

// Summarize runs the ledger for a single loan history.
func Summarize(h *models.LoanHistory) (LoanSummary, error) {
	if h == nil || h.Loan == nil {
		return LoanSummary{}, models.ErrLoanNotFound
	}

	view, err := ComputeLedger(h.Loan, h.Payments)
	if err != nil {
		return LoanSummary{}, err
	}

	return LoanSummary{
		LoanID:        h.Loan.ID,
		CustomerID:    h.Loan.CustomerID,
		Principal:     h.Loan.Principal,
		TotalAmount:   h.Loan.TotalAmount,
		TotalInterest: h.Loan.TotalAmount.Sub(h.Loan.Principal),
		EMIAmount:     h.Loan.MonthlyEMI,
		AmountPaid:    view.AmountPaid,
		BalanceAmount: view.BalanceAmount,
		EMIsLeft:      view.EMIsLeft,
		CreatedAt:     h.Loan.CreatedAt,
	}, nil
}

// CustomerOverview summarizes the loans in histories that belong to customerID,
// newest first. A customer without loans is reported as ErrCustomerNotFound.
func CustomerOverview(customerID string, histories []*models.LoanHistory) ([]LoanSummary, error) {
	summaries := make([]LoanSummary, 0, len(histories))
	for _, h := range histories {
		if h == nil || h.Loan == nil || h.Loan.CustomerID != customerID {
			continue
		}
		s, err := Summarize(h)
		if err != nil {
			return nil, fmt.Errorf("summarize loan %s: %w", h.Loan.ID, err)
		}
		summaries = append(summaries, s)
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrCustomerNotFound, customerID)
	}

	sortNewestFirst(summaries, func(s LoanSummary) time.Time { return s.CreatedAt })
	return summaries, nil
}

// GlobalOverview summarizes every loan in histories, newest first. names maps customer
// ids to display names; a customer missing from it is shown by id. No loans yields an
// empty, non-nil slice.
func GlobalOverview(histories []*models.LoanHistory, names map[string]string) ([]CustomerLoanSummary, error) {
	summaries := make([]CustomerLoanSummary, 0, len(histories))
	for _, h := range histories {
		if h == nil || h.Loan == nil {
			continue
		}
		s, err := Summarize(h)
		if err != nil {
			return nil, fmt.Errorf("summarize loan %s: %w", h.Loan.ID, err)
		}
		name, ok := names[s.CustomerID]
		if !ok || name == "" {
			name = s.CustomerID
		}
		summaries = append(summaries, CustomerLoanSummary{CustomerName: name, LoanSummary: s})
	}

	sortNewestFirst(summaries, func(s CustomerLoanSummary) time.Time { return s.CreatedAt })
	return summaries, nil
}

func sortNewestFirst[T any](items []T, createdAt func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return createdAt(b).Compare(createdAt(a))
	})
}
