package domain

import "github.com/shopspring/decimal"

type PaymentStatus string

const (
	PaymentStatusNotPaid       PaymentStatus = "not_paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusOverpaid      PaymentStatus = "overpaid"
)

// ResolvePaymentStatus derives a booking's status from what was paid against
// what is owed. A non-positive paid amount counts as not paid.
func ResolvePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentStatusNotPaid
	case paid.LessThan(total):
		return PaymentStatusPartiallyPaid
	case paid.Equal(total):
		return PaymentStatusPaid
	default:
		return PaymentStatusOverpaid
	}
}
