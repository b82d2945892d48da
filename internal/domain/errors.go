package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBookingNotFound and ErrTransactionNotFound narrow ErrNotFound where
	// the caller needs to know which side is missing.
	ErrBookingNotFound     = fmt.Errorf("booking %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("bank transaction %w", ErrNotFound)

	// ErrAlreadyReconciled is returned when a bank transaction already has a payment.
	ErrAlreadyReconciled = errors.New("bank transaction already reconciled")

	// ErrConflict means a concurrent writer changed the record first.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrInvalidAmount rejects zero or negative payment amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)
