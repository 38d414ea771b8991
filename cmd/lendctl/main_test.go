package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, seed(ctx, s))
	require.NoError(t, seed(ctx, s), "seeding twice must be harmless")

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, "John Doe", customers[0].Name)

	histories, err := s.AllHistories(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 3)

	loans, err := s.ListCustomerLoans(ctx, "CUST001")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	payments, err := s.ListPayments(ctx, loans[0].ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(2375)))
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dump.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, seed(ctx, s))

	var out bytes.Buffer
	require.NoError(t, dump(ctx, s, &out))

	text := out.String()
	for _, want := range []string{"CUSTOMERS", "LOANS", "PAYMENTS", "Jane Smith", "142500.00", "1688.89", "ACTIVE"} {
		assert.Contains(t, text, want)
	}
	assert.Equal(t, 2, strings.Count(text, "2375.00  EMI"))
}
