package reconciliation

import (
	"errors"

	"github.com/wakala/bankrecon/internal/domain"
)

// Outcome says what a reconciliation attempt did.
type Outcome string

const (
	OutcomeReconciled          Outcome = "reconciled"
	OutcomeAlreadyReconciled   Outcome = "already_reconciled"
	OutcomeTransactionNotFound Outcome = "transaction_not_found"
	OutcomeBookingNotFound     Outcome = "booking_not_found"
	OutcomeConflict            Outcome = "conflict"
	OutcomeInvalidAmount       Outcome = "invalid_amount"
)

// Result of ManualReconcile.
type Result struct {
	Outcome       Outcome         `json:"outcome"`
	TransactionID int64           `json:"transaction_id"`
	BookingID     int64           `json:"booking_id"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Booking       *domain.Booking `json:"booking,omitempty"`
}

// OK reports whether a payment was created.
func (r Result) OK() bool { return r.Outcome == OutcomeReconciled }

// outcomeFor maps ledger errors that are business outcomes. ok is false for
// anything else.
func outcomeFor(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, domain.ErrAlreadyReconciled):
		return OutcomeAlreadyReconciled, true
	case errors.Is(err, domain.ErrTransactionNotFound):
		return OutcomeTransactionNotFound, true
	case errors.Is(err, domain.ErrBookingNotFound):
		return OutcomeBookingNotFound, true
	case errors.Is(err, domain.ErrConflict):
		return OutcomeConflict, true
	case errors.Is(err, domain.ErrInvalidAmount):
		return OutcomeInvalidAmount, true
	}
	return "", false
}
