// Command lendctl seeds and inspects a lendbook database.
//
//	lendctl [-driver sqlite|postgres] [-db path] [-url dsn] seed
//	lendctl [-driver sqlite|postgres] [-db path] [-url dsn] dump
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mcclellann/lendbook/pkg/config"
	"github.com/mcclellann/lendbook/pkg/ledger"
	"github.com/mcclellann/lendbook/pkg/lending"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type seedLoan struct {
	customer models.Customer
	amount   string
	rate     string
	years    string
	emis     int // EMI payments recorded after creation
}

var sampleLoans = []seedLoan{
	{customer: models.Customer{ID: "CUST001", Name: "John Doe"}, amount: "100000", rate: "8.5", years: "5", emis: 2},
	{customer: models.Customer{ID: "CUST002", Name: "Jane Smith"}, amount: "50000", rate: "7.2", years: "3"},
	{customer: models.Customer{ID: "CUST003", Name: "Bob Johnson"}, amount: "200000", rate: "9.1", years: "10"},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	flag.StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "storage driver: sqlite or postgres")
	flag.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "SQLite database file")
	flag.StringVar(&cfg.Database.URL, "url", cfg.Database.URL, "PostgreSQL connection string")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] seed|dump\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	storage, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize store")
	}
	defer storage.Close()

	switch cmd := flag.Arg(0); cmd {
	case "seed":
		err = seed(ctx, storage)
	case "dump":
		err = dump(ctx, storage, os.Stdout)
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("lendctl failed")
	}
}

// seed inserts the sample customers and loans. Customers that already hold loans are
// left alone, so running it twice is harmless.
func seed(ctx context.Context, storage store.Storage) error {
	lender := lending.NewLender(storage)

	for _, s := range sampleLoans {
		existing, err := storage.ListCustomerLoans(ctx, s.customer.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			log.Info().Str("customer_id", s.customer.ID).Msg("Customer already seeded, skipping")
			continue
		}

		customer := s.customer
		customer.CreatedAt = time.Now().UTC()
		if err := storage.EnsureCustomer(ctx, &customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}

		loan, err := lender.CreateLoan(ctx, ledger.LoanApplication{
			CustomerID:        customer.ID,
			Principal:         decimal.NewNullDecimal(decimal.RequireFromString(s.amount)),
			AnnualRatePercent: decimal.NewNullDecimal(decimal.RequireFromString(s.rate)),
			PeriodYears:       decimal.NewNullDecimal(decimal.RequireFromString(s.years)),
		})
		if err != nil {
			return fmt.Errorf("seed loan for %s: %w", customer.ID, err)
		}

		for range s.emis {
			_, err := lender.RecordPayment(ctx, loan.ID.String(), ledger.PaymentRequest{
				Amount: decimal.NewNullDecimal(ledger.RoundCurrency(loan.MonthlyEMI)),
				Type:   string(models.PaymentTypeEMI),
			})
			if err != nil {
				return fmt.Errorf("seed payment for %s: %w", loan.ID, err)
			}
		}
	}

	log.Info().Int("customers", len(sampleLoans)).Msg("Seed complete")
	return nil
}

// dump prints customers, loans and payments as aligned tables.
func dump(ctx context.Context, storage store.Storage, out io.Writer) error {
	customers, err := storage.ListCustomers(ctx)
	if err != nil {
		return err
	}

	var loans []*models.Loan
	for _, c := range customers {
		owned, err := storage.ListCustomerLoans(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("list loans of %s: %w", c.ID, err)
		}
		loans = append(loans, owned...)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "CUSTOMERS")
	fmt.Fprintln(w, "customer_id\tname\tcreated_at")
	for _, c := range customers {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.CreatedAt.Format(time.RFC3339))
	}

	fmt.Fprintln(w, "\nLOANS")
	fmt.Fprintln(w, "loan_id\tcustomer_id\tprincipal\trate\tyears\tmonthly_emi\ttotal_amount\tstatus\tcreated_at")
	for _, l := range loans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			l.ID, l.CustomerID, l.Principal.StringFixed(2), l.AnnualRatePercent.String(), l.PeriodYears,
			ledger.RoundCurrency(l.MonthlyEMI).StringFixed(2), l.TotalAmount.StringFixed(2), l.Status,
			l.CreatedAt.Format(time.RFC3339))
	}

	fmt.Fprintln(w, "\nPAYMENTS")
	fmt.Fprintln(w, "payment_id\tloan_id\tamount\ttype\tpayment_date")
	for _, l := range loans {
		payments, err := storage.ListPayments(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("list payments of %s: %w", l.ID, err)
		}
		for _, p := range payments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.LoanID, p.Amount.StringFixed(2), p.Type, p.PaymentDate.Format(time.RFC3339))
		}
	}

	return w.Flush()
}
