package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is a single movement read from a statement. Amount is
// signed: positive for credits, negative for debits.
type BankTransaction struct {
	ID                  int64           `json:"id"`
	StatementID         int64           `json:"statement_id"`
	OrganisationID      int64           `json:"organisation_id"`
	Sequence            int             `json:"sequence"`
	TransactionDate     time.Time       `json:"transaction_date"`
	ValueDate           time.Time       `json:"value_date"`
	Amount              decimal.Decimal `json:"amount"`
	StructuredReference string          `json:"structured_reference,omitempty"`
	FreeCommunication   string          `json:"free_communication,omitempty"`
	CounterpartyName    string          `json:"counterparty_name,omitempty"`
	CounterpartyAccount string          `json:"counterparty_account,omitempty"`
	TransactionCode     string          `json:"transaction_code"`
	Reconciled          bool            `json:"reconciled"`
	PaymentID           string          `json:"payment_id,omitempty"`
}

// IsCredit reports whether money came into the account.
func (t *BankTransaction) IsCredit() bool {
	return t.Amount.IsPositive()
}
