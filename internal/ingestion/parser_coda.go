package ingestion

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ogm"
)

// CODA is a fixed-width format: every line is 128 characters and the first
// character names the record type. The file is ISO-8859-1, so byte offsets
// and character offsets coincide and text fields are decoded on extraction.
const codaLineLength = 128

const (
	recordHeader         = '0'
	recordOpeningBalance = '1'
	recordMovement       = '2'
	recordInformation    = '3'
	recordClosingBalance = '8'
	recordTrailer        = '9'
)

// Field positions, 0-indexed.
const (
	headerAccountStart = 5
	headerAccountLen   = 12
	headerDateStart    = 97

	balanceSignPos     = 41
	balanceAmountStart = 42

	movementDateStart      = 13
	movementValueDateStart = 31
	// The debit flag shares its offset with the first value-date character.
	movementSignPos        = 31
	movementAmountStart    = 32
	movementCodeStart      = 61
	movementCodeLen        = 8
	movementReferenceStart = 112
	movementReferenceLen   = 13

	infoSubtypePos   = 1
	infoTextStart    = 10
	infoTextLen      = 63
	infoAccountStart = 10
	infoAccountLen   = 37

	dateLen   = 6
	amountLen = 15
)

// ParseError is a fatal decoding failure on a recognized record. The whole
// file must be treated as not imported.
type ParseError struct {
	Line   int
	Record byte
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("coda line %d (record %c): %v", e.Line, e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parseState is everything carried from one line to the next.
type parseState struct {
	stmt     domain.Statement
	pending  *domain.BankTransaction
	freeText []string
}

// ParseCODA reads a complete CODA statement. Short lines and unknown record
// types are skipped and reported in Statement.Warnings; a malformed known
// record aborts the parse with a *ParseError.
func ParseCODA(r io.Reader, fileName string) (*domain.Statement, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4*codaLineLength), 64*1024)

	st := parseState{stmt: domain.Statement{FileName: fileName}}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		var err error
		st, err = step(st, lineNo, strings.TrimSuffix(sc.Text(), "\r"))
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read coda %s: %w", fileName, err)
	}

	if st.pending != nil {
		st = st.warn(lineNo, "no trailer record, last movement flushed at end of file")
		st = st.flush()
	}

	stmt := st.stmt
	stmt.TransactionCount = len(stmt.Transactions)
	return &stmt, nil
}

// step folds one line into the state.
func step(st parseState, lineNo int, line string) (parseState, error) {
	if len(line) < codaLineLength {
		return st.warn(lineNo, fmt.Sprintf("line too short (%d chars), skipped", len(line))), nil
	}

	rec := line[0]
	var err error
	switch rec {
	case recordHeader:
		st, err = st.header(line)
	case recordOpeningBalance:
		st.stmt.OpeningBalance, err = parseBalance(line)
	case recordMovement:
		st = st.flush()
		st, err = st.movement(line)
	case recordInformation:
		st, err = st.information(lineNo, line)
	case recordClosingBalance:
		st = st.flush()
		st.stmt.ClosingBalance, err = parseBalance(line)
	case recordTrailer:
		st = st.flush()
	default:
		return st.warn(lineNo, fmt.Sprintf("unknown record type %q, skipped", rec)), nil
	}
	if err != nil {
		return st, &ParseError{Line: lineNo, Record: rec, Err: err}
	}
	return st, nil
}

func (st parseState) warn(lineNo int, msg string) parseState {
	st.stmt.Warnings = append(st.stmt.Warnings, fmt.Sprintf("line %d: %s", lineNo, msg))
	return st
}

// flush emits the pending movement, if any, with the communication gathered
// from its information records.
func (st parseState) flush() parseState {
	if st.pending == nil {
		return st
	}
	txn := *st.pending
	if len(st.freeText) > 0 {
		txn.FreeCommunication = strings.TrimSpace(strings.Join(st.freeText, " "))
	}
	txn.Sequence = len(st.stmt.Transactions) + 1
	st.stmt.Transactions = append(st.stmt.Transactions, txn)
	st.pending = nil
	st.freeText = nil
	return st
}

func (st parseState) header(line string) (parseState, error) {
	account, err := latin1(field(line, headerAccountStart, headerAccountLen))
	if err != nil {
		return st, fmt.Errorf("account number: %w", err)
	}
	date, err := parseDate(field(line, headerDateStart, dateLen))
	if err != nil {
		return st, fmt.Errorf("statement date: %w", err)
	}
	st.stmt.AccountNumber = strings.TrimSpace(account)
	st.stmt.StatementDate = date
	return st, nil
}

func (st parseState) movement(line string) (parseState, error) {
	txDate, err := parseDate(field(line, movementDateStart, dateLen))
	if err != nil {
		return st, fmt.Errorf("transaction date: %w", err)
	}
	valueDate, err := parseDate(field(line, movementValueDateStart, dateLen))
	if err != nil {
		valueDate = txDate
	}
	amount, err := parseAmount(field(line, movementAmountStart, amountLen))
	if err != nil {
		return st, fmt.Errorf("amount: %w", err)
	}
	if line[movementSignPos] == '1' {
		amount = amount.Neg()
	}

	txn := &domain.BankTransaction{
		TransactionDate: txDate,
		ValueDate:       valueDate,
		Amount:          amount,
		TransactionCode: strings.TrimSpace(field(line, movementCodeStart, movementCodeLen)),
	}
	ref := strings.TrimSpace(field(line, movementReferenceStart, movementReferenceLen))
	if formatted, ok := ogm.FormatDigits(ref); ok {
		txn.StructuredReference = formatted
	}
	st.pending = txn
	return st, nil
}

func (st parseState) information(lineNo int, line string) (parseState, error) {
	if st.pending == nil {
		return st.warn(lineNo, "information record without movement, skipped"), nil
	}

	switch line[infoSubtypePos] {
	case '1':
		name, err := latin1(field(line, infoTextStart, infoTextLen))
		if err != nil {
			return st, fmt.Errorf("counterparty name: %w", err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			break
		}
		txn := *st.pending
		if txn.CounterpartyName == "" {
			txn.CounterpartyName = name
		} else {
			txn.CounterpartyName += " " + name
		}
		st.pending = &txn
	case '2':
		text, err := latin1(field(line, infoTextStart, infoTextLen))
		if err != nil {
			return st, fmt.Errorf("communication: %w", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			st.freeText = append(st.freeText, text)
		}
	case '3':
		account, err := latin1(field(line, infoAccountStart, infoAccountLen))
		if err != nil {
			return st, fmt.Errorf("counterparty account: %w", err)
		}
		if account = strings.TrimSpace(account); account != "" {
			txn := *st.pending
			txn.CounterpartyAccount = account
			st.pending = &txn
		}
	}
	return st, nil
}

func parseBalance(line string) (decimal.Decimal, error) {
	amount, err := parseAmount(field(line, balanceAmountStart, amountLen))
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	if line[balanceSignPos] == '1' {
		amount = amount.Neg()
	}
	return amount, nil
}

// parseAmount reads a digits-only field with three implied decimals.
func parseAmount(s string) (decimal.Decimal, error) {
	if !isDigits(s) {
		return decimal.Zero, fmt.Errorf("non-numeric amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-3), nil
}

// parseDate reads DDMMYY with the century fixed to 2000.
func parseDate(s string) (time.Time, error) {
	if len(s) != dateLen || !isDigits(s) {
		return time.Time{}, fmt.Errorf("non-numeric date %q", s)
	}
	day, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[2:4])
	year, _ := strconv.Atoi(s[4:6])
	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func field(line string, start, length int) string {
	return line[start : start+length]
}

func latin1(s string) (string, error) {
	return charmap.ISO8859_1.NewDecoder().String(s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
