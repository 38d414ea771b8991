package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/rs/zerolog/log"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore opens (or creates) the database file and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// One connection: the pragmas below stick, and writers are serialized so
	// concurrent payments against a loan cannot interleave.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info().Str("path", dataSourceName).Msg("SQLite store ready")
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Money columns are TEXT so decimals round-trip without loss. Insertion order comes
// from SQLite's implicit rowid.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		loan_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		principal_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		loan_period_years INTEGER NOT NULL,
		monthly_emi TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(customer_id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_customer ON loans(customer_id);
	CREATE TABLE IF NOT EXISTS payments (
		payment_id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_type TEXT NOT NULL DEFAULT 'EMI',
		payment_date DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(loan_id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id, payment_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

const (
	loanColumns    = `l.loan_id, l.customer_id, l.principal_amount, l.total_amount, l.interest_rate, l.loan_period_years, l.monthly_emi, l.status, l.created_at`
	paymentColumns = `p.payment_id, p.loan_id, p.amount, p.payment_type, p.payment_date`
)

// EnsureCustomer inserts the customer if the id is new. An existing customer keeps its name.
func (s *SQLiteStore) EnsureCustomer(ctx context.Context, customer *models.Customer) error {
	return ensureCustomer(ctx, s.db, customer)
}

func ensureCustomer(ctx context.Context, q queryer, customer *models.Customer) error {
	name := customer.Name
	if name == "" {
		name = customer.ID
	}
	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO customers (customer_id, name, created_at) VALUES (?, ?, ?)`,
		customer.ID, name, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure customer %s: %w", customer.ID, err)
	}
	return nil
}

// ListCustomers returns every customer ordered by id.
func (s *SQLiteStore) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT customer_id, name, created_at FROM customers ORDER BY customer_id`)
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
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureCustomer(ctx, tx, &models.Customer{ID: loan.CustomerID, CreatedAt: loan.CreatedAt}); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO loans (loan_id, customer_id, principal_amount, total_amount, interest_rate, loan_period_years, monthly_emi, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID, loan.Principal, loan.TotalAmount, loan.AnnualRatePercent, loan.PeriodYears, loan.MonthlyEMI, string(loan.Status), loan.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return tx.Commit()
}

func getLoan(ctx context.Context, q queryer, id uuid.UUID) (*models.Loan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans l WHERE l.loan_id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListCustomerLoans returns the customer's loans, newest first.
func (s *SQLiteStore) ListCustomerLoans(ctx context.Context, customerID string) ([]*models.Loan, error) {
	return listLoans(ctx, s.db, customerID)
}

// listLoans returns loans newest first; an empty customerID selects every loan.
func listLoans(ctx context.Context, q queryer, customerID string) ([]*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l`
	var args []any
	if customerID != "" {
		query += ` WHERE l.customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY l.created_at DESC, l.rowid DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var status string
	if err := row.Scan(&loan.ID, &loan.CustomerID, &loan.Principal, &loan.TotalAmount, &loan.AnnualRatePercent, &loan.PeriodYears, &loan.MonthlyEMI, &status, &loan.CreatedAt); err != nil {
		return nil, err
	}
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

// CreatePayment inserts a payment after checking, in the same transaction, that its loan
// exists, and returns the loan's history including it. The single connection serializes
// concurrent payments.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) (*models.LoanHistory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getLoan(ctx, tx, payment.LoanID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (payment_id, loan_id, amount, payment_type, payment_date) VALUES (?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Amount, string(payment.Type), payment.PaymentDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	history, err := loanHistory(ctx, tx, payment.LoanID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return history, nil
}

// ListPayments retrieves the payments of a loan in chronological order.
func (s *SQLiteStore) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return listPayments(ctx, s.db, `WHERE p.loan_id = ?`, loanID.String())
}

func listPayments(ctx context.Context, q queryer, where string, args ...any) ([]*models.Payment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments p JOIN loans l ON l.loan_id = p.loan_id `+where+` ORDER BY p.payment_date ASC, p.rowid ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var paymentType string
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &paymentType, &p.PaymentDate); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.Type = models.PaymentType(paymentType)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// LoanHistory reads a loan and its payments in one transaction.
func (s *SQLiteStore) LoanHistory(ctx context.Context, loanID uuid.UUID) (*models.LoanHistory, error) {
	var history *models.LoanHistory
	err := s.inReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		history, err = loanHistory(ctx, tx, loanID)
		return err
	})
	return history, err
}

func loanHistory(ctx context.Context, q queryer, loanID uuid.UUID) (*models.LoanHistory, error) {
	loan, err := getLoan(ctx, q, loanID)
	if err != nil {
		return nil, err
	}
	payments, err := listPayments(ctx, q, `WHERE p.loan_id = ?`, loanID.String())
	if err != nil {
		return nil, err
	}
	return &models.LoanHistory{Loan: loan, Payments: payments}, nil
}

// CustomerHistories reads every loan of a customer with its payments, newest loan first.
func (s *SQLiteStore) CustomerHistories(ctx context.Context, customerID string) ([]*models.LoanHistory, error) {
	var histories []*models.LoanHistory
	err := s.inReadTx(ctx, func(tx *sql.Tx) error {
		loans, err := listLoans(ctx, tx, customerID)
		if err != nil {
			return err
		}
		payments, err := listPayments(ctx, tx, `WHERE l.customer_id = ?`, customerID)
		if err != nil {
			return err
		}
		histories = groupHistories(loans, payments)
		return nil
	})
	return histories, err
}

// AllHistories reads every loan with its payments, newest loan first.
func (s *SQLiteStore) AllHistories(ctx context.Context) ([]*models.LoanHistory, error) {
	var histories []*models.LoanHistory
	err := s.inReadTx(ctx, func(tx *sql.Tx) error {
		loans, err := listLoans(ctx, tx, "")
		if err != nil {
			return err
		}
		payments, err := listPayments(ctx, tx, "")
		if err != nil {
			return err
		}
		histories = groupHistories(loans, payments)
		return nil
	})
	return histories, err
}

func (s *SQLiteStore) inReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// groupHistories attaches payments to their loans, keeping the order of both.
func groupHistories(loans []*models.Loan, payments []*models.Payment) []*models.LoanHistory {
	histories := make([]*models.LoanHistory, len(loans))
	byID := make(map[uuid.UUID]*models.LoanHistory, len(loans))
	for i, loan := range loans {
		histories[i] = &models.LoanHistory{Loan: loan}
		byID[loan.ID] = histories[i]
	}
	for _, p := range payments {
		if h, ok := byID[p.LoanID]; ok {
			h.Payments = append(h.Payments, p)
		}
	}
	return histories
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
