package domain

// DiscrepancyType says why an automatic match was not made for a transaction.
type DiscrepancyType string

const (
	DiscrepancyMissingReference  DiscrepancyType = "MISSING_REFERENCE"
	DiscrepancyInvalidReference  DiscrepancyType = "INVALID_REFERENCE"
	DiscrepancyUnknownBooking    DiscrepancyType = "UNKNOWN_BOOKING"
	DiscrepancyReferenceMismatch DiscrepancyType = "REFERENCE_MISMATCH"
	DiscrepancyNotReconciled     DiscrepancyType = "NOT_RECONCILED"
)

// Discrepancy records one credit transaction that auto-reconciliation left
// untouched.
type Discrepancy struct {
	Type          DiscrepancyType `json:"type"`
	TransactionID int64           `json:"transaction_id"`
	BookingID     int64           `json:"booking_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Description   string          `json:"description"`
}
