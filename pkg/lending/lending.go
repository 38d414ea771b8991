// Package lending wires the ledger calculations to storage: it resolves loans and
// payments, assigns identifiers and timestamps, and hands plain data to package ledger.
package lending

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/ledger"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Lender handles loan origination, payments and reporting on top of a Storage.
type Lender struct {
	storage store.Storage
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewLender creates a Lender with a given Storage implementation.
func NewLender(s store.Storage) *Lender {
	return &Lender{
		storage: s,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
}

// Receipt describes a recorded payment and the loan's position right after it.
type Receipt struct {
	Payment          *models.Payment
	RemainingBalance decimal.Decimal // Rounded to cents
	EMIsLeft         int64
}

// CustomerSummary is the per-customer overview.
type CustomerSummary struct {
	CustomerID string
	Loans      []ledger.LoanSummary
}

// CreateLoan validates the application, derives EMI and total amount, and stores the
// loan. The customer is created on first use.
func (l *Lender) CreateLoan(ctx context.Context, app ledger.LoanApplication) (*models.Loan, error) {
	loan, err := ledger.NewLoan(app)
	if err != nil {
		return nil, err
	}
	loan.ID = l.newID()
	loan.CreatedAt = l.now()

	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	log.Info().
		Str("loan_id", loan.ID.String()).
		Str("customer_id", loan.CustomerID).
		Str("principal", loan.Principal.String()).
		Int64("period_years", loan.PeriodYears).
		Str("monthly_emi", ledger.RoundCurrency(loan.MonthlyEMI).StringFixed(2)).
		Msg("Loan created")
	return loan, nil
}

// RecordPayment appends a payment to the loan and reports the balance that results.
func (l *Lender) RecordPayment(ctx context.Context, loanID string, req ledger.PaymentRequest) (*Receipt, error) {
	id, err := parseLoanID(loanID)
	if err != nil {
		return nil, err
	}

	amount, paymentType, err := ledger.ValidatePayment(req)
	if err != nil {
		return nil, err
	}
	if !paymentType.Known() {
		log.Warn().Str("loan_id", loanID).Str("payment_type", string(paymentType)).Msg("Unrecognized payment type accepted")
	}

	payment := &models.Payment{
		ID:          l.newID(),
		LoanID:      id,
		Amount:      amount,
		Type:        paymentType,
		PaymentDate: l.now(),
	}
	history, err := l.storage.CreatePayment(ctx, payment)
	if err != nil {
		return nil, err
	}
	_, balance := ledger.Totals(history.Loan, history.Payments)
	left, err := ledger.EMIsLeft(history.Loan, balance)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("loan_id", loanID).
		Str("payment_id", payment.ID.String()).
		Str("amount", amount.String()).
		Str("payment_type", string(paymentType)).
		Int64("emis_left", left).
		Msg("Payment recorded")

	return &Receipt{
		Payment:          payment,
		RemainingBalance: ledger.RoundCurrency(balance),
		EMIsLeft:         left,
	}, nil
}

// GetLedger returns the current ledger of a loan.
func (l *Lender) GetLedger(ctx context.Context, loanID string) (*ledger.View, error) {
	id, err := parseLoanID(loanID)
	if err != nil {
		return nil, err
	}

	history, err := l.storage.LoanHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return ledger.ComputeLedger(history.Loan, history.Payments)
}

// CustomerOverview summarizes every loan the customer holds, newest first.
func (l *Lender) CustomerOverview(ctx context.Context, customerID string) (*CustomerSummary, error) {
	customerID = strings.TrimSpace(customerID)

	histories, err := l.storage.CustomerHistories(ctx, customerID)
	if err != nil {
		return nil, err
	}
	loans, err := ledger.CustomerOverview(customerID, histories)
	if err != nil {
		return nil, err
	}
	return &CustomerSummary{CustomerID: customerID, Loans: loans}, nil
}

// GlobalOverview summarizes every loan on the books, newest first.
func (l *Lender) GlobalOverview(ctx context.Context) ([]ledger.CustomerLoanSummary, error) {
	customers, err := l.storage.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}

	histories, err := l.storage.AllHistories(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.GlobalOverview(histories, names)
}

// CustomerLoans lists the customer's loans, newest first.
func (l *Lender) CustomerLoans(ctx context.Context, customerID string) ([]*models.Loan, error) {
	customerID = strings.TrimSpace(customerID)

	loans, err := l.storage.ListCustomerLoans(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrCustomerNotFound, customerID)
	}
	return loans, nil
}

// parseLoanID maps a malformed id to ErrLoanNotFound; no loan can have it.
func parseLoanID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", models.ErrLoanNotFound, s)
	}
	return id, nil
}
