package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement is one imported CODA bank statement together with its movements
// in file order.
type Statement struct {
	ID               int64             `json:"id"`
	OrganisationID   int64             `json:"organisation_id"`
	FileName         string            `json:"file_name"`
	FileHash         string            `json:"file_hash"`
	AccountNumber    string            `json:"account_number"`
	StatementDate    time.Time         `json:"statement_date"`
	OpeningBalance   decimal.Decimal   `json:"opening_balance"`
	ClosingBalance   decimal.Decimal   `json:"closing_balance"`
	TransactionCount int               `json:"transaction_count"`
	ImportedAt       time.Time         `json:"imported_at"`
	Transactions     []BankTransaction `json:"transactions,omitempty"`

	// Warnings lists the lines the parser skipped. Not persisted.
	Warnings []string `json:"warnings,omitempty"`
}
