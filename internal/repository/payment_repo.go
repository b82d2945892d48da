package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wakala/bankrecon/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// ListByBooking returns the booking's payments, oldest first.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, booking_id, amount, payment_date, method, status, structured_reference,
		 bank_transaction_id, created_at
		FROM payments WHERE booking_id = ? ORDER BY created_at, id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var date, method, status, createdAt string
		var txnID sql.NullInt64
		if err := rows.Scan(
			&p.ID, &p.BookingID, &p.Amount, &date, &method, &status,
			&p.StructuredReference, &txnID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		p.Date = parseTime(date)
		p.Method = domain.PaymentMethod(method)
		p.Status = domain.PaymentStatus(status)
		p.CreatedAt = parseTime(createdAt)
		if txnID.Valid {
			id := txnID.Int64
			p.BankTransactionID = &id
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
