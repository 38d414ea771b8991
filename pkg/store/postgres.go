package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Storage on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore connects to databaseURL and creates the tables if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info().Msg("Postgres store ready")
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		seq BIGSERIAL UNIQUE,
		loan_id UUID PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(customer_id),
		principal_amount NUMERIC NOT NULL,
		total_amount NUMERIC NOT NULL,
		interest_rate NUMERIC NOT NULL,
		loan_period_years INTEGER NOT NULL,
		monthly_emi NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_loans_customer ON loans(customer_id);
	CREATE TABLE IF NOT EXISTS payments (
		seq BIGSERIAL UNIQUE,
		payment_id UUID PRIMARY KEY,
		loan_id UUID NOT NULL REFERENCES loans(loan_id),
		amount NUMERIC NOT NULL,
		payment_type TEXT NOT NULL DEFAULT 'EMI',
		payment_date TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id, payment_date);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const (
	pgLoanColumns    = `l.loan_id::text, l.customer_id, l.principal_amount, l.total_amount, l.interest_rate, l.loan_period_years, l.monthly_emi, l.status, l.created_at`
	pgPaymentColumns = `p.payment_id::text, p.loan_id::text, p.amount, p.payment_type, p.payment_date`
)

// EnsureCustomer inserts the customer if the id is new. An existing customer keeps its name.
func (s *PostgresStore) EnsureCustomer(ctx context.Context, customer *models.Customer) error {
	return pgEnsureCustomer(ctx, s.pool, customer)
}

func pgEnsureCustomer(ctx context.Context, q pgQuerier, customer *models.Customer) error {
	name := customer.Name
	if name == "" {
		name = customer.ID
	}
	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx,
		`INSERT INTO customers (customer_id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (customer_id) DO NOTHING`,
		customer.ID, name, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure customer %s: %w", customer.ID, err)
	}
	return nil
}

// ListCustomers returns every customer ordered by id.
func (s *PostgresStore) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.pool.Query(ctx, `SELECT customer_id, name, created_at FROM customers ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// CreateLoan inserts a new loan, creating its customer first if needed, in one transaction.
func (s *PostgresStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgEnsureCustomer(ctx, tx, &models.Customer{ID: loan.CustomerID, CreatedAt: loan.CreatedAt}); err != nil {
			return err
		}

		args, err := numericArgs(loan.Principal, loan.TotalAmount, loan.AnnualRatePercent, loan.MonthlyEMI)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO loans (loan_id, customer_id, principal_amount, total_amount, interest_rate, loan_period_years, monthly_emi, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			loan.ID.String(), loan.CustomerID, args[0], args[1], args[2], loan.PeriodYears, args[3], string(loan.Status), loan.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}
		return nil
	})
}

func pgGetLoan(ctx context.Context, q pgQuerier, id uuid.UUID) (*models.Loan, error) {
	row := q.QueryRow(ctx, `SELECT `+pgLoanColumns+` FROM loans l WHERE l.loan_id = $1`, id.String())
	loan, err := pgScanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListCustomerLoans returns the customer's loans, newest first.
func (s *PostgresStore) ListCustomerLoans(ctx context.Context, customerID string) ([]*models.Loan, error) {
	return pgListLoans(ctx, s.pool, customerID)
}

// pgListLoans returns loans newest first; an empty customerID selects every loan.
func pgListLoans(ctx context.Context, q pgQuerier, customerID string) ([]*models.Loan, error) {
	query := `SELECT ` + pgLoanColumns + ` FROM loans l`
	var args []any
	if customerID != "" {
		query += ` WHERE l.customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY l.created_at DESC, l.seq DESC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := pgScanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func pgScanLoan(row pgx.Row) (*models.Loan, error) {
	var (
		loan                               models.Loan
		id, status                         string
		principal, total, rate, monthlyEMI pgtype.Numeric
	)
	if err := row.Scan(&id, &loan.CustomerID, &principal, &total, &rate, &loan.PeriodYears, &monthlyEMI, &status, &loan.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", id, err)
	}
	loan.ID = parsed
	loan.Principal = pgNumericToDecimal(principal)
	loan.TotalAmount = pgNumericToDecimal(total)
	loan.AnnualRatePercent = pgNumericToDecimal(rate)
	loan.MonthlyEMI = pgNumericToDecimal(monthlyEMI)
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

// CreatePayment inserts a payment and returns the loan's history including it. The loan
// row is locked for update, so payments on one loan commit one at a time and the history
// holds exactly the payments committed before this one.
func (s *PostgresStore) CreatePayment(ctx context.Context, payment *models.Payment) (*models.LoanHistory, error) {
	var history *models.LoanHistory
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM loans WHERE loan_id = $1 FOR UPDATE`, payment.LoanID.String()).Scan(&exists)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrLoanNotFound
			}
			return fmt.Errorf("failed to lock loan: %w", err)
		}

		amount, err := decimalToPgNumeric(payment.Amount)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO payments (payment_id, loan_id, amount, payment_type, payment_date) VALUES ($1, $2, $3, $4, $5)`,
			payment.ID.String(), payment.LoanID.String(), amount, string(payment.Type), payment.PaymentDate,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		history, err = pgLoanHistory(ctx, tx, payment.LoanID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ListPayments retrieves the payments of a loan in chronological order.
func (s *PostgresStore) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return pgListPayments(ctx, s.pool, `WHERE p.loan_id = $1`, loanID.String())
}

func pgListPayments(ctx context.Context, q pgQuerier, where string, args ...any) ([]*models.Payment, error) {
	rows, err := q.Query(ctx,
		`SELECT `+pgPaymentColumns+` FROM payments p JOIN loans l ON l.loan_id = p.loan_id `+where+` ORDER BY p.payment_date ASC, p.seq ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var (
			p                 models.Payment
			id, loanID, ptype string
			amount            pgtype.Numeric
		)
		if err := rows.Scan(&id, &loanID, &amount, &ptype, &p.PaymentDate); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid payment id %q: %w", id, err)
		}
		if p.LoanID, err = uuid.Parse(loanID); err != nil {
			return nil, fmt.Errorf("invalid loan id %q: %w", loanID, err)
		}
		p.Amount = pgNumericToDecimal(amount)
		p.Type = models.PaymentType(ptype)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// LoanHistory reads a loan and its payments in one snapshot.
func (s *PostgresStore) LoanHistory(ctx context.Context, loanID uuid.UUID) (*models.LoanHistory, error) {
	var history *models.LoanHistory
	err := s.inSnapshot(ctx, func(tx pgx.Tx) error {
		var err error
		history, err = pgLoanHistory(ctx, tx, loanID)
		return err
	})
	return history, err
}

func pgLoanHistory(ctx context.Context, q pgQuerier, loanID uuid.UUID) (*models.LoanHistory, error) {
	loan, err := pgGetLoan(ctx, q, loanID)
	if err != nil {
		return nil, err
	}
	payments, err := pgListPayments(ctx, q, `WHERE p.loan_id = $1`, loanID.String())
	if err != nil {
		return nil, err
	}
	return &models.LoanHistory{Loan: loan, Payments: payments}, nil
}

// CustomerHistories reads every loan of a customer with its payments, newest loan first.
func (s *PostgresStore) CustomerHistories(ctx context.Context, customerID string) ([]*models.LoanHistory, error) {
	var histories []*models.LoanHistory
	err := s.inSnapshot(ctx, func(tx pgx.Tx) error {
		loans, err := pgListLoans(ctx, tx, customerID)
		if err != nil {
			return err
		}
		payments, err := pgListPayments(ctx, tx, `WHERE l.customer_id = $1`, customerID)
		if err != nil {
			return err
		}
		histories = groupHistories(loans, payments)
		return nil
	})
	return histories, err
}

// AllHistories reads every loan with its payments, newest loan first.
func (s *PostgresStore) AllHistories(ctx context.Context) ([]*models.LoanHistory, error) {
	var histories []*models.LoanHistory
	err := s.inSnapshot(ctx, func(tx pgx.Tx) error {
		loans, err := pgListLoans(ctx, tx, "")
		if err != nil {
			return err
		}
		payments, err := pgListPayments(ctx, tx, "")
		if err != nil {
			return err
		}
		histories = groupHistories(loans, payments)
		return nil
	})
	return histories, err
}

// inSnapshot runs fn in a read-only repeatable-read transaction, so every query in it
// sees the same committed state.
func (s *PostgresStore) inSnapshot(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, fn)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func numericArgs(values ...decimal.Decimal) ([]pgtype.Numeric, error) {
	out := make([]pgtype.Numeric, len(values))
	for i, v := range values {
		n, err := decimalToPgNumeric(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// decimalToPgNumeric converts through the decimal's string form, which is exact.
func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("failed to convert %s to numeric: %w", d, err)
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
