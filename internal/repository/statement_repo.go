package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wakala/bankrecon/internal/domain"
)

type StatementRepo struct {
	db *sql.DB
}

func NewStatementRepo(db *sql.DB) *StatementRepo {
	return &StatementRepo{db: db}
}

// ExistsByHash checks whether the organisation already imported a file with
// the given hash.
func (r *StatementRepo) ExistsByHash(ctx context.Context, organisationID int64, hash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM statements WHERE organisation_id = ? AND file_hash = ?",
		organisationID, hash,
	).Scan(&count)
	return count > 0, err
}

// Create stores the statement and all of its transactions in one database
// transaction. IDs are written back into stmt.
func (r *StatementRepo) Create(ctx context.Context, stmt *domain.Statement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if stmt.ImportedAt.IsZero() {
		stmt.ImportedAt = time.Now().UTC()
	}
	stmt.TransactionCount = len(stmt.Transactions)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO statements
		(organisation_id, file_name, file_hash, account_number, statement_date,
		 opening_balance, closing_balance, transaction_count, imported_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		stmt.OrganisationID, stmt.FileName, stmt.FileHash, stmt.AccountNumber,
		formatTime(stmt.StatementDate), stmt.OpeningBalance, stmt.ClosingBalance,
		stmt.TransactionCount, formatTime(stmt.ImportedAt),
	)
	if err != nil {
		return fmt.Errorf("insert statement: %w", err)
	}
	if stmt.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("statement id: %w", err)
	}

	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO bank_transactions
		(statement_id, organisation_id, sequence, transaction_date, value_date, amount,
		 structured_reference, free_communication, counterparty_name, counterparty_account,
		 transaction_code, reconciled)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,0)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer ins.Close()

	for i := range stmt.Transactions {
		t := &stmt.Transactions[i]
		t.StatementID = stmt.ID
		t.OrganisationID = stmt.OrganisationID
		t.Reconciled = false
		t.PaymentID = ""
		if t.Sequence == 0 {
			t.Sequence = i + 1
		}
		res, err := ins.ExecContext(ctx,
			t.StatementID, t.OrganisationID, t.Sequence,
			formatTime(t.TransactionDate), formatTime(t.ValueDate), t.Amount,
			t.StructuredReference, t.FreeCommunication, t.CounterpartyName,
			t.CounterpartyAccount, t.TransactionCode,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %d: %w", t.Sequence, err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("transaction id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID returns the statement header without its transactions.
func (r *StatementRepo) GetByID(ctx context.Context, id int64) (*domain.Statement, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+statementColumns+" FROM statements WHERE id = ?", id)
	stmt, err := scanStatement(row)
	if err != nil {
		return nil, notFound(err)
	}
	return stmt, nil
}

// Delete removes a statement; its transactions go with it.
func (r *StatementRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM statements WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type StatementFilter struct {
	OrganisationID int64
	From           *time.Time
	To             *time.Time
	Page           int
	Limit          int
}

func (r *StatementRepo) List(ctx context.Context, f StatementFilter) ([]domain.Statement, int, error) {
	where, args := buildStatementWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statements"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + statementColumns + " FROM statements" + where +
		" ORDER BY statement_date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var stmts []domain.Statement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		stmts = append(stmts, *s)
	}
	return stmts, total, rows.Err()
}

const statementColumns = `id, organisation_id, file_name, file_hash, account_number, statement_date,
	opening_balance, closing_balance, transaction_count, imported_at`

func buildStatementWhere(f StatementFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.OrganisationID != 0 {
		clauses = append(clauses, "organisation_id = ?")
		args = append(args, f.OrganisationID)
	}
	if f.From != nil {
		clauses = append(clauses, "statement_date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "statement_date <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanStatement(row rowScanner) (*domain.Statement, error) {
	var s domain.Statement
	var stmtDate, importedAt string

	err := row.Scan(
		&s.ID, &s.OrganisationID, &s.FileName, &s.FileHash, &s.AccountNumber, &stmtDate,
		&s.OpeningBalance, &s.ClosingBalance, &s.TransactionCount, &importedAt,
	)
	if err != nil {
		return nil, err
	}

	s.StatementDate = parseTime(stmtDate)
	s.ImportedAt = parseTime(importedAt)
	return &s, nil
}
