package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lendbook/pkg/ledger"
	"github.com/mcclellann/lendbook/pkg/lending"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Server holds the lending service.
type Server struct {
	lender  *lending.Lender
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage) *Server {
	return &Server{
		lender:  lending.NewLender(s),
		storage: s,
	}
}

type createLoanRequest struct {
	CustomerID         string              `json:"customer_id"`
	LoanAmount         decimal.NullDecimal `json:"loan_amount"`
	LoanPeriodYears    decimal.NullDecimal `json:"loan_period_years"`
	InterestRateYearly decimal.NullDecimal `json:"interest_rate_yearly"`
}

type createLoanResponse struct {
	LoanID             uuid.UUID `json:"loan_id"`
	CustomerID         string    `json:"customer_id"`
	TotalAmountPayable float64   `json:"total_amount_payable"`
	MonthlyEMI         float64   `json:"monthly_emi"`
}

type paymentRequest struct {
	Amount      decimal.NullDecimal `json:"amount"`
	PaymentType string              `json:"payment_type"`
}

type paymentResponse struct {
	PaymentID        uuid.UUID `json:"payment_id"`
	LoanID           uuid.UUID `json:"loan_id"`
	Message          string    `json:"message"`
	RemainingBalance float64   `json:"remaining_balance"`
	EMIsLeft         int64     `json:"emis_left"`
}

type transactionResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Amount        float64   `json:"amount"`
	Type          string    `json:"type"`
}

type ledgerResponse struct {
	LoanID        uuid.UUID             `json:"loan_id"`
	CustomerID    string                `json:"customer_id"`
	Principal     float64               `json:"principal"`
	TotalAmount   float64               `json:"total_amount"`
	MonthlyEMI    float64               `json:"monthly_emi"`
	AmountPaid    float64               `json:"amount_paid"`
	BalanceAmount float64               `json:"balance_amount"`
	EMIsLeft      int64                 `json:"emis_left"`
	Transactions  []transactionResponse `json:"transactions"`
}

type loanSummaryResponse struct {
	LoanID        uuid.UUID `json:"loan_id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Principal     float64   `json:"principal"`
	TotalAmount   float64   `json:"total_amount"`
	TotalInterest float64   `json:"total_interest"`
	EMIAmount     float64   `json:"emi_amount"`
	AmountPaid    float64   `json:"amount_paid"`
	BalanceAmount float64   `json:"balance_amount"`
	EMIsLeft      int64     `json:"emis_left"`
	CreatedAt     time.Time `json:"created_at"`
}

type customerOverviewResponse struct {
	CustomerID string                `json:"customer_id"`
	TotalLoans int                   `json:"total_loans"`
	Loans      []loanSummaryResponse `json:"loans"`
}

type globalOverviewResponse struct {
	TotalLoans int                   `json:"total_loans"`
	Loans      []loanSummaryResponse `json:"loans"`
}

type customerLoanResponse struct {
	LoanID          uuid.UUID `json:"loan_id"`
	PrincipalAmount float64   `json:"principal_amount"`
	MonthlyEMI      float64   `json:"monthly_emi"`
	CreatedAt       time.Time `json:"created_at"`
}

type customerLoansResponse struct {
	CustomerID string                 `json:"customer_id"`
	Loans      []customerLoanResponse `json:"loans"`
}

// accountOverviewRow is the row shape the dashboard frontend reads.
type accountOverviewRow struct {
	Name        string    `json:"name"`
	LoanID      uuid.UUID `json:"loanId"`
	Principal   float64   `json:"principal"`
	EMI         float64   `json:"emi"`
	TotalAmount float64   `json:"totalAmount"`
	TotalPaid   float64   `json:"totalPaid"`
	Balance     float64   `json:"balance"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", models.ErrInvalidLoanTerms, err))
		return
	}

	loan, err := s.lender.CreateLoan(r.Context(), ledger.LoanApplication{
		CustomerID:        req.CustomerID,
		Principal:         req.LoanAmount,
		AnnualRatePercent: req.InterestRateYearly,
		PeriodYears:       req.LoanPeriodYears,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createLoanResponse{
		LoanID:             loan.ID,
		CustomerID:         loan.CustomerID,
		TotalAmountPayable: money(loan.TotalAmount),
		MonthlyEMI:         money(loan.MonthlyEMI),
	})
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loan_id"]

	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", models.ErrInvalidPayment, err))
		return
	}

	receipt, err := s.lender.RecordPayment(r.Context(), loanID, ledger.PaymentRequest{
		Amount: req.Amount,
		Type:   req.PaymentType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		PaymentID:        receipt.Payment.ID,
		LoanID:           receipt.Payment.LoanID,
		Message:          "Payment recorded successfully.",
		RemainingBalance: money(receipt.RemainingBalance),
		EMIsLeft:         receipt.EMIsLeft,
	})
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.lender.GetLedger(r.Context(), mux.Vars(r)["loan_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs := make([]transactionResponse, 0, len(view.Transactions))
	for _, tx := range view.Transactions {
		txs = append(txs, transactionResponse{
			TransactionID: tx.ID,
			Date:          tx.Date,
			Amount:        money(tx.Amount),
			Type:          string(tx.Type),
		})
	}

	writeJSON(w, http.StatusOK, ledgerResponse{
		LoanID:        view.LoanID,
		CustomerID:    view.CustomerID,
		Principal:     money(view.Principal),
		TotalAmount:   money(view.TotalAmount),
		MonthlyEMI:    money(view.MonthlyEMI),
		AmountPaid:    money(view.AmountPaid),
		BalanceAmount: money(view.BalanceAmount),
		EMIsLeft:      view.EMIsLeft,
		Transactions:  txs,
	})
}

func (s *Server) customerOverviewHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.lender.CustomerOverview(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	loans := make([]loanSummaryResponse, 0, len(summary.Loans))
	for _, l := range summary.Loans {
		loans = append(loans, toSummaryResponse(l, ""))
	}
	writeJSON(w, http.StatusOK, customerOverviewResponse{
		CustomerID: summary.CustomerID,
		TotalLoans: len(loans),
		Loans:      loans,
	})
}

func (s *Server) globalOverviewHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.lender.GlobalOverview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	loans := make([]loanSummaryResponse, 0, len(rows))
	for _, row := range rows {
		resp := toSummaryResponse(row.LoanSummary, row.CustomerName)
		resp.CustomerID = row.CustomerID
		loans = append(loans, resp)
	}
	writeJSON(w, http.StatusOK, globalOverviewResponse{TotalLoans: len(loans), Loans: loans})
}

func (s *Server) customerLoansHandler(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["customer_id"]
	loans, err := s.lender.CustomerLoans(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := customerLoansResponse{CustomerID: loans[0].CustomerID, Loans: make([]customerLoanResponse, 0, len(loans))}
	for _, l := range loans {
		resp.Loans = append(resp.Loans, customerLoanResponse{
			LoanID:          l.ID,
			PrincipalAmount: money(l.Principal),
			MonthlyEMI:      money(l.MonthlyEMI),
			CreatedAt:       l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) accountOverviewHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.lender.GlobalOverview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]accountOverviewRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, accountOverviewRow{
			Name:        row.CustomerName,
			LoanID:      row.LoanID,
			Principal:   money(row.Principal),
			EMI:         money(row.EMIAmount),
			TotalAmount: money(row.TotalAmount),
			TotalPaid:   money(row.AmountPaid),
			Balance:     money(row.BalanceAmount),
			CreatedAt:   row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toSummaryResponse(l ledger.LoanSummary, name string) loanSummaryResponse {
	return loanSummaryResponse{
		LoanID:        l.LoanID,
		Name:          name,
		Principal:     money(l.Principal),
		TotalAmount:   money(l.TotalAmount),
		TotalInterest: money(l.TotalInterest),
		EMIAmount:     money(l.EMIAmount),
		AmountPaid:    money(l.AmountPaid),
		BalanceAmount: money(l.BalanceAmount),
		EMIsLeft:      l.EMIsLeft,
		CreatedAt:     l.CreatedAt,
	}
}

// money renders a monetary figure for a response, rounded to cents.
func money(d decimal.Decimal) float64 {
	return ledger.RoundCurrency(d).InexactFloat64()
}

// decodeBody decodes a JSON body into v. An empty body leaves v zero so that field
// validation reports what is missing.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognized is a 500
// and its detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidLoanTerms), errors.Is(err, models.ErrInvalidPayment):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrLoanNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Loan not found"})
	case errors.Is(err, models.ErrCustomerNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found or has no loans"})
	default:
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
