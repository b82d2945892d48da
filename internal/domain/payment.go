package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

// Payment is money received for a booking. BankTransactionID is set when the
// payment came from reconciling an imported bank movement; at most one
// payment exists per bank transaction.
type Payment struct {
	ID                  string          `json:"id"`
	BookingID           int64           `json:"booking_id"`
	Amount              decimal.Decimal `json:"amount"`
	Date                time.Time       `json:"date"`
	Method              PaymentMethod   `json:"method"`
	Status              PaymentStatus   `json:"status"`
	StructuredReference string          `json:"structured_reference,omitempty"`
	BankTransactionID   *int64          `json:"bank_transaction_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}
