package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
)

// Storage defines the persistence operations for customers, loans and payments.
//
// Implementations return models.ErrLoanNotFound for unknown loans. Payments always come
// back ascending by payment date, ties in insertion order; loans come back newest first.
// The history reads are taken inside one transaction so a loan and its payments are a
// consistent snapshot.
type Storage interface {
	// EnsureCustomer inserts the customer unless one with the same id exists.
	EnsureCustomer(ctx context.Context, customer *models.Customer) error
	ListCustomers(ctx context.Context) ([]*models.Customer, error)

	// CreateLoan creates the owning customer on first use, then inserts the loan.
	CreateLoan(ctx context.Context, loan *models.Loan) error
	ListCustomerLoans(ctx context.Context, customerID string) ([]*models.Loan, error)

	// CreatePayment appends the payment and returns the loan's history as of that
	// insert, read in the same transaction. Payments on one loan are serialized.
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.LoanHistory, error)
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)

	LoanHistory(ctx context.Context, loanID uuid.UUID) (*models.LoanHistory, error)
	CustomerHistories(ctx context.Context, customerID string) ([]*models.LoanHistory, error)
	AllHistories(ctx context.Context) ([]*models.LoanHistory, error)

	Close() error
}
