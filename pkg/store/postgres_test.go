package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresTestStore connects to DATABASE_URL. Tests that use it run against a real
// server and are skipped when none is configured.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err, "Failed to connect to Postgres")
	t.Cleanup(func() { s.Close() })
	return s
}

// uniqueCustomer keeps runs against a shared database apart.
func uniqueCustomer(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func TestPostgresStore_LoanRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	loan := newLoan(uniqueCustomer("pg_loan"), base)
	loan.MonthlyEMI = decimal.RequireFromString("1688.8888888888888889")
	require.NoError(t, s.CreateLoan(ctx, loan))

	history, err := s.LoanHistory(ctx, loan.ID)
	require.NoError(t, err)
	fetched := history.Loan
	assert.Equal(t, loan.ID, fetched.ID)
	assert.Equal(t, loan.CustomerID, fetched.CustomerID)
	assert.True(t, fetched.Principal.Equal(loan.Principal))
	assert.True(t, fetched.AnnualRatePercent.Equal(loan.AnnualRatePercent))
	assert.True(t, fetched.MonthlyEMI.Equal(loan.MonthlyEMI), "EMI lost precision: %s", fetched.MonthlyEMI)
	assert.Equal(t, models.LoanStatusActive, fetched.Status)
	assert.True(t, fetched.CreatedAt.Equal(base))
	assert.Empty(t, history.Payments)

	_, err = s.LoanHistory(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestPostgresStore_CreatePayment(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	loan := newLoan(uniqueCustomer("pg_pay"), base)
	require.NoError(t, s.CreateLoan(ctx, loan))

	later := newPayment(loan.ID, "20", base.AddDate(0, 0, 2))
	history, err := s.CreatePayment(ctx, later)
	require.NoError(t, err)
	require.Len(t, history.Payments, 1)
	assert.Equal(t, later.ID, history.Payments[0].ID)

	earlier := newPayment(loan.ID, "10", base.AddDate(0, 0, 1))
	history, err = s.CreatePayment(ctx, earlier)
	require.NoError(t, err)
	require.Len(t, history.Payments, 2)
	assert.Equal(t, earlier.ID, history.Payments[0].ID)
	assert.Equal(t, later.ID, history.Payments[1].ID)

	payments, err := s.ListPayments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(10)))

	_, err = s.CreatePayment(ctx, newPayment(uuid.New(), "50", base))
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestPostgresStore_CustomerHistories(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	customer := uniqueCustomer("pg_hist")
	older := newLoan(customer, base)
	newer := newLoan(customer, base.Add(24*time.Hour))
	for _, l := range []*models.Loan{older, newer} {
		require.NoError(t, s.CreateLoan(ctx, l))
	}
	_, err := s.CreatePayment(ctx, newPayment(older.ID, "2375", base.AddDate(0, 1, 0)))
	require.NoError(t, err)

	histories, err := s.CustomerHistories(ctx, customer)
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, newer.ID, histories[0].Loan.ID)
	assert.Empty(t, histories[0].Payments)
	assert.Equal(t, older.ID, histories[1].Loan.ID)
	require.Len(t, histories[1].Payments, 1)

	loans, err := s.ListCustomerLoans(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, loans, 2)
}
