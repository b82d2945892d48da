package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/wakala/bankrecon/internal/domain"
)

func TestBooking_ApplyPayment(t *testing.T) {
	b := &domain.Booking{TotalAmount: decimal.NewFromInt(100), PaymentStatus: domain.PaymentStatusNotPaid}

	b.ApplyPayment(decimal.NewFromInt(40))
	assert.Equal(t, domain.PaymentStatusPartiallyPaid, b.PaymentStatus)
	assert.True(t, b.Remaining().Equal(decimal.NewFromInt(60)))

	b.ApplyPayment(decimal.NewFromInt(60))
	assert.Equal(t, domain.PaymentStatusPaid, b.PaymentStatus)

	b.ApplyPayment(decimal.NewFromInt(5))
	assert.Equal(t, domain.PaymentStatusOverpaid, b.PaymentStatus)
	assert.True(t, b.Remaining().Equal(decimal.NewFromInt(-5)))
}

func TestBooking_SetTotal(t *testing.T) {
	b := &domain.Booking{TotalAmount: decimal.NewFromInt(100)}
	b.ApplyPayment(decimal.NewFromInt(100))
	assert.Equal(t, domain.PaymentStatusPaid, b.PaymentStatus)

	// An added excursion raises the total.
	b.SetTotal(decimal.NewFromInt(120))
	assert.Equal(t, domain.PaymentStatusPartiallyPaid, b.PaymentStatus)

	// Removing it again and more drops it below what was paid.
	b.SetTotal(decimal.NewFromInt(80))
	assert.Equal(t, domain.PaymentStatusOverpaid, b.PaymentStatus)
}
