package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Guardian is the person expected to pay for a booking.
type Guardian struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Booking is the receivable a bank transaction gets matched against.
//
// PaidAmount and PaymentStatus are only ever changed through ApplyPayment and
// SetTotal so that the status always equals ResolvePaymentStatus(PaidAmount,
// TotalAmount).
type Booking struct {
	ID                  int64           `json:"id"`
	OrganisationID      int64           `json:"organisation_id"`
	StructuredReference string          `json:"structured_reference"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	Confirmed           bool            `json:"confirmed"`
	Guardian            Guardian        `json:"guardian"`
	ActivityName        string          `json:"activity_name"`
	ActivityStartDate   time.Time       `json:"activity_start_date"`
	BookingDate         time.Time       `json:"booking_date"`
	Version             int64           `json:"version"`
}

// Remaining is what is still owed. Negative when overpaid.
func (b *Booking) Remaining() decimal.Decimal {
	return b.TotalAmount.Sub(b.PaidAmount)
}

// ApplyPayment adds amount to the paid total and recomputes the status.
func (b *Booking) ApplyPayment(amount decimal.Decimal) {
	b.PaidAmount = b.PaidAmount.Add(amount)
	b.PaymentStatus = ResolvePaymentStatus(b.PaidAmount, b.TotalAmount)
}

// SetTotal replaces the amount owed and recomputes the status.
func (b *Booking) SetTotal(total decimal.Decimal) {
	b.TotalAmount = total
	b.PaymentStatus = ResolvePaymentStatus(b.PaidAmount, b.TotalAmount)
}
