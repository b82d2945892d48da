package reconciliation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/reconciliation"
	"github.com/wakala/bankrecon/internal/repository"
)

type stack struct {
	svc        *reconciliation.Service
	statements *repository.StatementRepo
	bookings   *repository.BookingRepo
	txns       *repository.TransactionRepo
	payments   *repository.PaymentRepo
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	txns := repository.NewTransactionRepo(db)
	bookings := repository.NewBookingRepo(db)
	return &stack{
		svc: reconciliation.NewService(txns, bookings, repository.NewLedgerRepo(db), zerolog.Nop(),
			reconciliation.Options{MaxRetries: 3, SuggestionCacheTTL: time.Minute}),
		statements: repository.NewStatementRepo(db),
		bookings:   bookings,
		txns:       txns,
		payments:   repository.NewPaymentRepo(db),
	}
}

func (st *stack) importStatement(t *testing.T, hash string, txns ...domain.BankTransaction) *domain.Statement {
	t.Helper()
	stmt := &domain.Statement{OrganisationID: 1, FileName: hash, FileHash: hash, Transactions: txns}
	require.NoError(t, st.statements.Create(context.Background(), stmt))
	return stmt
}

func TestIntegration_AutoReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)

	b := &domain.Booking{OrganisationID: 1, TotalAmount: dec("100"), Confirmed: true}
	require.NoError(t, st.bookings.Create(ctx, b))

	stmt := st.importStatement(t, "june",
		credit(0, "60", b.StructuredReference),
		credit(0, "40", b.StructuredReference),
		credit(0, "-25", b.StructuredReference),
		credit(0, "10", ""),
	)

	n, err := st.svc.AutoReconcile(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := st.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(stored.PaidAmount))
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)

	n, err = st.svc.AutoReconcile(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := st.svc.ManualReconcile(ctx, stmt.Transactions[0].ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, reconciliation.OutcomeAlreadyReconciled, res.Outcome)

	stored, err = st.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(stored.PaidAmount))

	payments, err := st.payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	open, err := st.svc.UnreconciledTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, dec("10").Equal(open[0].Amount))
}

func TestIntegration_ConcurrentManualReconcile(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)

	b := &domain.Booking{OrganisationID: 1, TotalAmount: dec("100"), Confirmed: true}
	require.NoError(t, st.bookings.Create(ctx, b))
	stmt := st.importStatement(t, "race", credit(0, "75", ""))
	txnID := stmt.Transactions[0].ID

	const workers = 10
	results := make([]reconciliation.Result, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = st.svc.ManualReconcile(ctx, txnID, b.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].OK() {
			ok++
			continue
		}
		assert.Equal(t, reconciliation.OutcomeAlreadyReconciled, results[i].Outcome)
	}
	assert.Equal(t, 1, ok)

	stored, err := st.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, dec("75").Equal(stored.PaidAmount))
	assert.Equal(t, domain.PaymentStatusPartiallyPaid, stored.PaymentStatus)
}

func TestIntegration_ConcurrentPaymentsToOneBooking(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)

	b := &domain.Booking{OrganisationID: 1, TotalAmount: dec("1000"), Confirmed: true}
	require.NoError(t, st.bookings.Create(ctx, b))

	const workers = 8
	txns := make([]domain.BankTransaction, workers)
	want := decimal.Zero
	for i := range txns {
		amount := decimal.NewFromInt(int64(10 * (i + 1)))
		txns[i] = credit(0, amount.String(), "")
		want = want.Add(amount)
	}
	stmt := st.importStatement(t, "split", txns...)

	results := make([]reconciliation.Result, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = st.svc.ManualReconcile(ctx, stmt.Transactions[i].ID, b.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].OK(), "transaction %d: %s", i, results[i].Outcome)
	}

	payments, err := st.payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, payments, workers)

	stored, err := st.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(stored.PaidAmount), "paid %s, want %s", stored.PaidAmount, want)
	assert.Equal(t, domain.PaymentStatusPartiallyPaid, stored.PaymentStatus)
	assert.Equal(t, int64(1+workers), stored.Version)
}

func TestIntegration_SuggestionsThenCashPayment(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)

	b := &domain.Booking{
		OrganisationID:    1,
		TotalAmount:       dec("120"),
		Confirmed:         true,
		Guardian:          domain.Guardian{FirstName: "Jan", LastName: "Peeters"},
		ActivityStartDate: time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.bookings.Create(ctx, b))

	txn := credit(0, "120", "")
	txn.CounterpartyName = "J. PEETERS"
	st.importStatement(t, "hint", txn)

	got, err := st.svc.Suggestions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 80, got[0].Score)
	assert.Equal(t, b.ID, got[0].Booking.ID)

	// Paid in cash meanwhile: the booking drops out of the open list.
	_, updated, err := st.svc.RecordCashPayment(ctx, b.ID, dec("120"), time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)

	got, err = st.svc.Suggestions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
