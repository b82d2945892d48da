package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wakala/bankrecon/internal/domain"
)

// LedgerRepo is the only writer of payments. Every payment, together with
// the booking totals and the bank-transaction flag it implies, is written in
// a single database transaction.
type LedgerRepo struct {
	db *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// ApplyPayment records p against its booking and returns the updated
// booking.
//
// If p is linked to a bank transaction, that transaction is flipped to
// reconciled only if it was not already; otherwise domain.ErrAlreadyReconciled
// is returned and nothing is written. domain.ErrConflict means the booking
// was modified concurrently and the call may be retried.
func (r *LedgerRepo) ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Booking, error) {
	if !p.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPaid
	}
	p.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	b, err := loadBooking(ctx, tx, p.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	var txnID any
	if p.BankTransactionID != nil {
		txnID = *p.BankTransactionID
		if err := markReconciled(ctx, tx, *p.BankTransactionID, p.ID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO payments
		(id, booking_id, amount, payment_date, method, status, structured_reference,
		 bank_transaction_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.BookingID, p.Amount, formatTime(p.Date), string(p.Method), string(p.Status),
		p.StructuredReference, txnID, formatTime(p.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	b.ApplyPayment(p.Amount)
	if err := saveBookingAmounts(ctx, tx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// markReconciled is the compare-and-set on the transaction's reconciled
// flag.
func markReconciled(ctx context.Context, tx *sql.Tx, txnID int64, paymentID string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE bank_transactions SET reconciled = 1, payment_id = ? WHERE id = ? AND reconciled = 0",
		paymentID, txnID,
	)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM bank_transactions WHERE id = ?", txnID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrTransactionNotFound
	case err != nil:
		return fmt.Errorf("lookup transaction: %w", err)
	default:
		return domain.ErrAlreadyReconciled
	}
}
