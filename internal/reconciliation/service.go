package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ogm"
)

// TransactionStore reads imported bank transactions.
type TransactionStore interface {
	GetByID(ctx context.Context, id int64) (*domain.BankTransaction, error)
	ListUnreconciledByStatement(ctx context.Context, statementID int64) ([]domain.BankTransaction, error)
	ListUnreconciledByOrganisation(ctx context.Context, organisationID int64) ([]domain.BankTransaction, error)
}

// BookingStore reads bookings.
type BookingStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListOpen(ctx context.Context, organisationID int64) ([]domain.Booking, error)
}

// Ledger atomically records a payment, updates the booking and, for bank
// payments, flags the transaction as reconciled.
type Ledger interface {
	ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Booking, error)
}

type Options struct {
	// MaxRetries bounds how often a payment is retried after a concurrent
	// booking update.
	MaxRetries int
	// SuggestionCacheTTL bounds how long suggestions are reused. Zero or
	// less computes them on every call.
	SuggestionCacheTTL time.Duration
}

// Service matches bank transactions to bookings.
type Service struct {
	txns     TransactionStore
	bookings BookingStore
	ledger   Ledger
	log      zerolog.Logger
	opts     Options

	suggestions *cache.Cache // nil when caching is off
}

// NewService creates a new reconciliation service.
func NewService(txns TransactionStore, bookings BookingStore, ledger Ledger, log zerolog.Logger, opts Options) *Service {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	s := &Service{
		txns:     txns,
		bookings: bookings,
		ledger:   ledger,
		log:      log.With().Str("component", "reconciliation").Logger(),
		opts:     opts,
	}
	if ttl := opts.SuggestionCacheTTL; ttl > 0 {
		s.suggestions = cache.New(ttl, 2*ttl)
	}
	return s
}

// AutoReconcileReport summarises one automatic pass over a statement.
type AutoReconcileReport struct {
	StatementID   int64                `json:"statement_id"`
	Considered    int                  `json:"considered"`
	Reconciled    int                  `json:"reconciled"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
}

// AutoReconcile matches the statement's unreconciled credit transactions to
// bookings by structured reference and returns how many were reconciled.
func (s *Service) AutoReconcile(ctx context.Context, statementID int64) (int, error) {
	report, err := s.AutoReconcileWithReport(ctx, statementID)
	if err != nil {
		return 0, err
	}
	return report.Reconciled, nil
}

// AutoReconcileWithReport is AutoReconcile that also lists every credit
// transaction it left alone and why. Each match is committed on its own, so
// an error on one row never undoes another. An error is only returned when
// the transactions cannot be loaded.
func (s *Service) AutoReconcileWithReport(ctx context.Context, statementID int64) (*AutoReconcileReport, error) {
	txns, err := s.txns.ListUnreconciledByStatement(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled: %w", err)
	}

	report := &AutoReconcileReport{StatementID: statementID, Discrepancies: []domain.Discrepancy{}}
	skip := func(d domain.Discrepancy) {
		s.log.Info().
			Int64("transaction_id", d.TransactionID).
			Str("type", string(d.Type)).
			Str("reference", d.Reference).
			Msg(d.Description)
		report.Discrepancies = append(report.Discrepancies, d)
	}

	for i := range txns {
		txn := &txns[i]
		if !txn.IsCredit() {
			continue
		}
		report.Considered++

		ref := txn.StructuredReference
		if ref == "" {
			skip(domain.Discrepancy{
				Type: domain.DiscrepancyMissingReference, TransactionID: txn.ID,
				Description: "no structured reference",
			})
			continue
		}
		bookingID, ok := ogm.ExtractBookingID(ref)
		if !ok {
			skip(domain.Discrepancy{
				Type: domain.DiscrepancyInvalidReference, TransactionID: txn.ID, Reference: ref,
				Description: "structured reference fails checksum",
			})
			continue
		}

		booking, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.log.Warn().Err(err).Int64("transaction_id", txn.ID).Msg("load booking failed")
			}
			skip(domain.Discrepancy{
				Type: domain.DiscrepancyUnknownBooking, TransactionID: txn.ID, BookingID: bookingID, Reference: ref,
				Description: fmt.Sprintf("booking %d not found", bookingID),
			})
			continue
		}
		if booking.StructuredReference != ref {
			skip(domain.Discrepancy{
				Type: domain.DiscrepancyReferenceMismatch, TransactionID: txn.ID, BookingID: bookingID, Reference: ref,
				Description: fmt.Sprintf("booking %d carries reference %q", bookingID, booking.StructuredReference),
			})
			continue
		}

		if _, err := s.reconcile(ctx, txn, booking); err != nil {
			skip(domain.Discrepancy{
				Type: domain.DiscrepancyNotReconciled, TransactionID: txn.ID, BookingID: bookingID, Reference: ref,
				Description: err.Error(),
			})
			continue
		}
		report.Reconciled++
	}

	s.log.Info().
		Int64("statement_id", statementID).
		Int("considered", report.Considered).
		Int("reconciled", report.Reconciled).
		Int("skipped", len(report.Discrepancies)).
		Msg("auto reconciliation finished")

	return report, nil
}

// ManualReconcile links a transaction to a booking chosen by a person. The
// structured reference is not checked. It is refused when either side is
// missing, when the transaction is already reconciled, when the booking keeps
// changing underneath it (OutcomeConflict), and for debits, which the ledger
// rejects as OutcomeInvalidAmount. The error is reserved for storage
// failures; every business outcome is reported in Result.
func (s *Service) ManualReconcile(ctx context.Context, transactionID, bookingID int64) (Result, error) {
	res := Result{TransactionID: transactionID, BookingID: bookingID}

	txn, err := s.txns.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			res.Outcome = OutcomeTransactionNotFound
			return res, nil
		}
		return res, fmt.Errorf("load transaction: %w", err)
	}
	if txn.Reconciled {
		res.Outcome = OutcomeAlreadyReconciled
		res.PaymentID = txn.PaymentID
		return res, nil
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			res.Outcome = OutcomeBookingNotFound
			return res, nil
		}
		return res, fmt.Errorf("load booking: %w", err)
	}

	p, err := s.reconcile(ctx, txn, booking)
	if err != nil {
		outcome, ok := outcomeFor(err)
		if !ok {
			return res, err
		}
		s.log.Info().
			Int64("transaction_id", transactionID).
			Int64("booking_id", bookingID).
			Str("outcome", string(outcome)).
			Msg("manual reconciliation refused")
		res.Outcome = outcome
		return res, nil
	}

	res.Outcome = OutcomeReconciled
	res.PaymentID = p.payment.ID
	res.Booking = p.booking
	return res, nil
}

// RecordCashPayment books money received outside the bank through the same
// ledger as reconciled transfers.
func (s *Service) RecordCashPayment(ctx context.Context, bookingID int64, amount decimal.Decimal, date time.Time, reference string) (*domain.Payment, *domain.Booking, error) {
	p := &domain.Payment{
		ID:                  uuid.NewString(),
		BookingID:           bookingID,
		Amount:              amount,
		Date:                date,
		Method:              domain.PaymentMethodCash,
		Status:              domain.PaymentStatusPaid,
		StructuredReference: reference,
	}
	b, err := s.apply(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Int64("booking_id", bookingID).
		Str("payment_id", p.ID).
		Str("amount", amount.String()).
		Str("status", string(b.PaymentStatus)).
		Msg("cash payment recorded")
	return p, b, nil
}

// UnreconciledTransactions lists the organisation's credit transactions that
// still need a booking.
func (s *Service) UnreconciledTransactions(ctx context.Context, organisationID int64) ([]domain.BankTransaction, error) {
	txns, err := s.txns.ListUnreconciledByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled: %w", err)
	}
	credits := make([]domain.BankTransaction, 0, len(txns))
	for _, t := range txns {
		if t.IsCredit() {
			credits = append(credits, t)
		}
	}
	return credits, nil
}

// OpenBookings lists the organisation's confirmed bookings still awaiting
// money.
func (s *Service) OpenBookings(ctx context.Context, organisationID int64) ([]domain.Booking, error) {
	bookings, err := s.bookings.ListOpen(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("list open bookings: %w", err)
	}
	return bookings, nil
}

type applied struct {
	payment *domain.Payment
	booking *domain.Booking
}

// reconcile is the one path by which a bank transaction becomes a payment.
func (s *Service) reconcile(ctx context.Context, txn *domain.BankTransaction, booking *domain.Booking) (applied, error) {
	txnID := txn.ID
	p := &domain.Payment{
		ID:                  uuid.NewString(),
		BookingID:           booking.ID,
		Amount:              txn.Amount,
		Date:                txn.TransactionDate,
		Method:              domain.PaymentMethodBankTransfer,
		Status:              domain.PaymentStatusPaid,
		StructuredReference: txn.StructuredReference,
		BankTransactionID:   &txnID,
	}
	b, err := s.apply(ctx, p)
	if err != nil {
		return applied{}, err
	}
	s.evictSuggestions(txn.OrganisationID)

	s.log.Info().
		Int64("transaction_id", txn.ID).
		Int64("booking_id", booking.ID).
		Str("payment_id", p.ID).
		Str("amount", txn.Amount.String()).
		Str("status", string(b.PaymentStatus)).
		Msg("reconciled")
	return applied{payment: p, booking: b}, nil
}

// apply hands the payment to the ledger, retrying when another writer
// updated the booking in between.
func (s *Service) apply(ctx context.Context, p *domain.Payment) (*domain.Booking, error) {
	var (
		b   *domain.Booking
		err error
	)
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		b, err = s.ledger.ApplyPayment(ctx, p)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		s.log.Debug().Int64("booking_id", p.BookingID).Int("attempt", attempt+1).Msg("booking changed concurrently, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("apply payment to booking %d: %w", p.BookingID, err)
	}
	s.evictSuggestions(b.OrganisationID)
	return b, nil
}

// InvalidateSuggestions drops cached suggestions for the organisation, for
// changes made outside the ledger such as an imported statement or a new
// booking total.
func (s *Service) InvalidateSuggestions(organisationID int64) {
	s.evictSuggestions(organisationID)
}

func (s *Service) evictSuggestions(organisationID int64) {
	if s.suggestions == nil {
		return
	}
	s.suggestions.Delete(strconv.FormatInt(organisationID, 10))
}
