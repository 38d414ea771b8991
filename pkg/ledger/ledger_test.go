package ledger

import (
	"testing"
	"time"

	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func TestComputeLedger_TwoEMIPayments(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	payments := []*models.Payment{
		testPayment(loan, "2375", day0.AddDate(0, 1, 0)),
		testPayment(loan, "2375", day0.AddDate(0, 2, 0)),
	}

	view, err := ComputeLedger(loan, payments)
	require.NoError(t, err)

	assert.Equal(t, loan.ID, view.LoanID)
	assert.Equal(t, "CUST001", view.CustomerID)
	assertDecimal(t, "100000", view.Principal)
	assertDecimal(t, "142500", view.TotalAmount)
	assertDecimal(t, "2375", view.MonthlyEMI)
	assertDecimal(t, "4750", view.AmountPaid)
	assertDecimal(t, "137750", view.BalanceAmount)
	assert.Equal(t, int64(58), view.EMIsLeft)
	require.Len(t, view.Transactions, 2)
	assert.Equal(t, payments[0].ID, view.Transactions[0].ID)
	assert.Equal(t, models.PaymentTypeEMI, view.Transactions[0].Type)
}

func TestComputeLedger_NoPayments(t *testing.T) {
	for _, years := range []int64{1, 3, 5, 10, 30} {
		loan := testLoan(t, "CUST002", "50000", "7.2", years, day0)

		view, err := ComputeLedger(loan, nil)
		require.NoError(t, err)

		assertDecimal(t, "0", view.AmountPaid)
		assertDecimal(t, RoundCurrency(loan.TotalAmount).String(), view.BalanceAmount)
		assert.Equal(t, years*12, view.EMIsLeft, "years=%d", years)
		assert.Empty(t, view.Transactions)
	}
}

func TestComputeLedger_UnevenEMIStillCountsWholeInstallments(t *testing.T) {
	// 1 at 0% over 30 years gives an EMI of 1/360 that cannot be stored exactly.
	loan := testLoan(t, "CUST009", "1", "0", 30, day0)

	view, err := ComputeLedger(loan, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(360), view.EMIsLeft)
}

func TestComputeLedger_LargeEMIRemainderCountsAnInstallment(t *testing.T) {
	loan := testLoan(t, "CUST010", "12000000000", "0", 1, day0)
	assertDecimal(t, "1000000000", loan.MonthlyEMI)
	payments := []*models.Payment{testPayment(loan, "10999999996", day0)}

	view, err := ComputeLedger(loan, payments)
	require.NoError(t, err)

	assertDecimal(t, "1000000004", view.BalanceAmount)
	assert.Equal(t, int64(2), view.EMIsLeft)
}

func TestEMIsLeft_TinyBalanceStillNeedsAnInstallment(t *testing.T) {
	loan := testLoan(t, "CUST011", "12000000000", "0", 1, day0)

	for _, b := range []string{"0.01", "0.000001", "1000000000.000001"} {
		left, err := EMIsLeft(loan, dec(b))
		require.NoError(t, err)
		want := int64(1)
		if dec(b).GreaterThan(loan.MonthlyEMI) {
			want = 2
		}
		assert.Equal(t, want, left, "balance %s", b)
	}
}

func TestEMIsLeft_ExactMultiplesOfUnevenEMI(t *testing.T) {
	// EMI 60800/36 is stored rounded; k installments of the true EMI must count as k.
	loan := testLoan(t, "CUST002", "50000", "7.2", 3, day0)
	perInstallment := loan.TotalAmount.Div(decimal.NewFromInt(36))

	for k := int64(1); k <= 36; k++ {
		balance := loan.TotalAmount.Mul(decimal.NewFromInt(k)).Div(decimal.NewFromInt(36))
		left, err := EMIsLeft(loan, balance)
		require.NoError(t, err)
		assert.Equal(t, k, left, "k=%d per=%s", k, perInstallment)
	}
}

func TestComputeLedger_PartialInstallmentRoundsUp(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	payments := []*models.Payment{testPayment(loan, "1000", day0)}

	view, err := ComputeLedger(loan, payments)
	require.NoError(t, err)

	// 141500 / 2375 = 59.57...
	assertDecimal(t, "141500", view.BalanceAmount)
	assert.Equal(t, int64(60), view.EMIsLeft)
}

func TestComputeLedger_Overpayment(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	payments := []*models.Payment{
		testPayment(loan, "142500", day0),
		testPayment(loan, "100.50", day0.Add(time.Hour)),
	}

	view, err := ComputeLedger(loan, payments)
	require.NoError(t, err)

	assertDecimal(t, "142600.5", view.AmountPaid)
	assertDecimal(t, "-100.5", view.BalanceAmount)
	assert.Equal(t, int64(0), view.EMIsLeft)
}

func TestComputeLedger_RoundsOnlyAtOutput(t *testing.T) {
	loan := testLoan(t, "CUST001", "100", "0", 1, day0)
	payments := []*models.Payment{
		testPayment(loan, "0.005", day0),
		testPayment(loan, "0.005", day0.Add(time.Minute)),
		testPayment(loan, "0.005", day0.Add(2*time.Minute)),
	}

	paid, balance := Totals(loan, payments)
	assertDecimal(t, "0.015", paid)
	assertDecimal(t, "99.985", balance)

	view, err := ComputeLedger(loan, payments)
	require.NoError(t, err)
	// Rounding each payment first would give 0.03.
	assertDecimal(t, "0.02", view.AmountPaid)
	assertDecimal(t, "99.99", view.BalanceAmount)
}

func TestTotals_BalanceIsExactDifference(t *testing.T) {
	loan := testLoan(t, "CUST003", "200000", "9.1", 10, day0)
	amounts := []string{"3183.33", "0.01", "12000", "7.777", "99999.999"}

	var payments []*models.Payment
	sum := decimal.Zero
	for i, a := range amounts {
		payments = append(payments, testPayment(loan, a, day0.AddDate(0, i, 0)))
		sum = sum.Add(dec(a))

		paid, balance := Totals(loan, payments)
		assert.True(t, paid.Equal(sum))
		assert.True(t, balance.Equal(loan.TotalAmount.Sub(sum)))
	}
}

func TestComputeLedger_Idempotent(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	payments := []*models.Payment{
		testPayment(loan, "2375", day0),
		testPayment(loan, "500", day0.Add(24*time.Hour)),
	}

	first, err := ComputeLedger(loan, payments)
	require.NoError(t, err)
	second, err := ComputeLedger(loan, payments)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeLedger_KeepsInputOrder(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	later := testPayment(loan, "10", day0.AddDate(0, 0, 5))
	earlier := testPayment(loan, "20", day0.AddDate(0, 0, 1))

	view, err := ComputeLedger(loan, []*models.Payment{later, earlier})
	require.NoError(t, err)

	require.Len(t, view.Transactions, 2)
	assert.Equal(t, later.ID, view.Transactions[0].ID)
	assert.Equal(t, earlier.ID, view.Transactions[1].ID)
}

func TestComputeLedger_NilLoan(t *testing.T) {
	_, err := ComputeLedger(nil, nil)
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestEMIsLeft_ZeroEMIGuard(t *testing.T) {
	loan := testLoan(t, "CUST001", "100", "0", 1, day0)
	loan.MonthlyEMI = decimal.Zero

	_, err := EMIsLeft(loan, dec("100"))
	assert.ErrorIs(t, err, models.ErrArithmetic)

	left, err := EMIsLeft(loan, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)

	left, err = EMIsLeft(loan, dec("-5"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)
}

func TestEMIsLeft_NeverNegative(t *testing.T) {
	loan := testLoan(t, "CUST001", "100000", "8.5", 5, day0)
	for _, b := range []string{"-1000000", "-0.01", "0", "0.01", "2375", "2375.01", "142500"} {
		left, err := EMIsLeft(loan, dec(b))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, left, int64(0), "balance %s", b)
	}
}
