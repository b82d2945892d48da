package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wakala/bankrecon/internal/domain"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) GetByID(ctx context.Context, id int64) (*domain.BankTransaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM bank_transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// ListByStatement returns every transaction of a statement in file order.
func (r *TransactionRepo) ListByStatement(ctx context.Context, statementID int64) ([]domain.BankTransaction, error) {
	return r.query(ctx,
		"SELECT "+transactionColumns+" FROM bank_transactions WHERE statement_id = ? ORDER BY sequence",
		statementID,
	)
}

// ListUnreconciledByStatement returns the statement's transactions that
// have no payment yet, in file order.
func (r *TransactionRepo) ListUnreconciledByStatement(ctx context.Context, statementID int64) ([]domain.BankTransaction, error) {
	return r.query(ctx,
		"SELECT "+transactionColumns+` FROM bank_transactions
		WHERE statement_id = ? AND reconciled = 0 ORDER BY sequence`,
		statementID,
	)
}

// ListUnreconciledByOrganisation returns every unreconciled transaction of
// the organisation, oldest first.
func (r *TransactionRepo) ListUnreconciledByOrganisation(ctx context.Context, organisationID int64) ([]domain.BankTransaction, error) {
	return r.query(ctx,
		"SELECT "+transactionColumns+` FROM bank_transactions
		WHERE organisation_id = ? AND reconciled = 0 ORDER BY transaction_date, id`,
		organisationID,
	)
}

type TransactionFilter struct {
	OrganisationID int64
	StatementID    int64
	Reconciled     *bool
	From           *time.Time
	To             *time.Time
	Page           int
	Limit          int
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter) ([]domain.BankTransaction, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	countSQL := "SELECT COUNT(*) FROM bank_transactions" + where
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	querySQL := "SELECT " + transactionColumns + " FROM bank_transactions" + where +
		" ORDER BY transaction_date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	txns, err := r.query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *TransactionRepo) query(ctx context.Context, q string, args ...any) ([]domain.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// --- helpers ---

const transactionColumns = `id, statement_id, organisation_id, sequence, transaction_date, value_date,
	amount, structured_reference, free_communication, counterparty_name, counterparty_account,
	transaction_code, reconciled, payment_id`

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.OrganisationID != 0 {
		clauses = append(clauses, "organisation_id = ?")
		args = append(args, f.OrganisationID)
	}
	if f.StatementID != 0 {
		clauses = append(clauses, "statement_id = ?")
		args = append(args, f.StatementID)
	}
	if f.Reconciled != nil {
		clauses = append(clauses, "reconciled = ?")
		args = append(args, boolToInt(*f.Reconciled))
	}
	if f.From != nil {
		clauses = append(clauses, "transaction_date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "transaction_date <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransaction(row rowScanner) (*domain.BankTransaction, error) {
	var t domain.BankTransaction
	var txDate, valueDate string
	var paymentID sql.NullString

	err := row.Scan(
		&t.ID, &t.StatementID, &t.OrganisationID, &t.Sequence, &txDate, &valueDate,
		&t.Amount, &t.StructuredReference, &t.FreeCommunication, &t.CounterpartyName,
		&t.CounterpartyAccount, &t.TransactionCode, &t.Reconciled, &paymentID,
	)
	if err != nil {
		return nil, err
	}

	t.TransactionDate = parseTime(txDate)
	t.ValueDate = parseTime(valueDate)
	if paymentID.Valid {
		t.PaymentID = paymentID.String
	}
	return &t, nil
}
