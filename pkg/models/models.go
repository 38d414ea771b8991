package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

// LoanStatusActive is the only status assigned today. The column is kept open for
// closed/defaulted states; nothing transitions a loan out of it.
const LoanStatusActive LoanStatus = "ACTIVE"

// PaymentType is a free-form label. It never changes how a payment is applied.
type PaymentType string

const (
	PaymentTypeEMI     PaymentType = "EMI"
	PaymentTypeLumpSum PaymentType = "LUMP_SUM"
)

// Known reports whether t is one of the enumerated payment types.
func (t PaymentType) Known() bool {
	return t == PaymentTypeEMI || t == PaymentTypeLumpSum
}

type Customer struct {
	ID        string    `json:"customer_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LoanTerms are fixed when the loan is created.
type LoanTerms struct {
	Principal         decimal.Decimal `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"interest_rate"`
	PeriodYears       int64           `json:"loan_period_years"`
}

// Installments is the number of monthly installments the terms span.
func (t LoanTerms) Installments() int64 {
	return t.PeriodYears * 12
}

type Loan struct {
	LoanTerms
	ID          uuid.UUID       `json:"loan_id"`
	CustomerID  string          `json:"customer_id"`
	MonthlyEMI  decimal.Decimal `json:"monthly_emi"`  // Full precision, never recomputed
	TotalAmount decimal.Decimal `json:"total_amount"` // Principal plus simple interest for the whole term
	Status      LoanStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Payment struct {
	ID          uuid.UUID       `json:"payment_id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        PaymentType     `json:"payment_type"`
	PaymentDate time.Time       `json:"payment_date"`
}

// LoanHistory is a loan together with every payment recorded against it, read as one
// snapshot. Payments are ascending by PaymentDate, ties in insertion order.
type LoanHistory struct {
	Loan     *Loan
	Payments []*Payment
}
