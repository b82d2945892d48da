package reconciliation_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/reconciliation"
)

// --- Mock TransactionStore ---
type MockTransactionStore struct {
	mock.Mock
}

var _ reconciliation.TransactionStore = (*MockTransactionStore)(nil)

func (m *MockTransactionStore) GetByID(ctx context.Context, id int64) (*domain.BankTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankTransaction), args.Error(1)
}

func (m *MockTransactionStore) ListUnreconciledByStatement(ctx context.Context, statementID int64) ([]domain.BankTransaction, error) {
	args := m.Called(ctx, statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BankTransaction), args.Error(1)
}

func (m *MockTransactionStore) ListUnreconciledByOrganisation(ctx context.Context, organisationID int64) ([]domain.BankTransaction, error) {
	args := m.Called(ctx, organisationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BankTransaction), args.Error(1)
}

// --- Mock BookingStore ---
type MockBookingStore struct {
	mock.Mock
}

var _ reconciliation.BookingStore = (*MockBookingStore)(nil)

func (m *MockBookingStore) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingStore) ListOpen(ctx context.Context, organisationID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, organisationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

// --- Mock Ledger ---
type MockLedger struct {
	mock.Mock
}

var _ reconciliation.Ledger = (*MockLedger)(nil)

func (m *MockLedger) ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Booking, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
