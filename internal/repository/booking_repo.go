package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ogm"
)

type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// Create inserts the booking and assigns its structured reference, derived
// from the new id, in the same transaction.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertBooking(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// BulkCreate inserts bookings in one transaction. Used for seeding.
func (r *BookingRepo) BulkCreate(ctx context.Context, bookings []domain.Booking) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range bookings {
		if err := insertBooking(ctx, tx, &bookings[i]); err != nil {
			return 0, fmt.Errorf("booking %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bookings), nil
}

func (r *BookingRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings").Scan(&count)
	return count, err
}

func (r *BookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return loadBooking(ctx, r.db, id)
}

func (r *BookingRepo) GetByReference(ctx context.Context, ref string) (*domain.Booking, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE structured_reference = ?", ref)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// ListOpen returns the organisation's confirmed bookings that are not or
// only partially paid.
func (r *BookingRepo) ListOpen(ctx context.Context, organisationID int64) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+` FROM bookings
		WHERE organisation_id = ? AND confirmed = 1 AND payment_status IN (?, ?)
		ORDER BY id`,
		organisationID, string(domain.PaymentStatusNotPaid), string(domain.PaymentStatusPartiallyPaid),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// UpdateTotal changes what the booking costs and recomputes its status.
// Returns domain.ErrConflict when the booking changed since it was read.
func (r *BookingRepo) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	b, err := loadBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	b.SetTotal(total)
	if err := saveBookingAmounts(ctx, tx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// --- helpers ---

const bookingColumns = `id, organisation_id, structured_reference, total_amount, paid_amount,
	payment_status, confirmed, guardian_first_name, guardian_last_name, activity_name,
	activity_start_date, booking_date, version`

// queryRower is implemented by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertBooking(ctx context.Context, tx *sql.Tx, b *domain.Booking) error {
	if b.BookingDate.IsZero() {
		b.BookingDate = time.Now().UTC()
	}
	b.PaymentStatus = domain.ResolvePaymentStatus(b.PaidAmount, b.TotalAmount)
	b.Version = 1

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings
		(organisation_id, total_amount, paid_amount, payment_status, confirmed,
		 guardian_first_name, guardian_last_name, activity_name, activity_start_date,
		 booking_date, version)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		b.OrganisationID, b.TotalAmount, b.PaidAmount, string(b.PaymentStatus),
		boolToInt(b.Confirmed), b.Guardian.FirstName, b.Guardian.LastName, b.ActivityName,
		formatTime(b.ActivityStartDate), formatTime(b.BookingDate), b.Version,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("booking id: %w", err)
	}

	ref, err := ogm.Generate(b.ID)
	if err != nil {
		return fmt.Errorf("structured reference: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE bookings SET structured_reference = ? WHERE id = ?", ref, b.ID,
	); err != nil {
		return fmt.Errorf("set structured reference: %w", err)
	}
	b.StructuredReference = ref
	return nil
}

func loadBooking(ctx context.Context, q queryRower, id int64) (*domain.Booking, error) {
	row := q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// saveBookingAmounts writes paid, total and status back, guarded by the
// version the booking was read at. On success b.Version is bumped.
func saveBookingAmounts(ctx context.Context, tx *sql.Tx, b *domain.Booking) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings
		SET total_amount = ?, paid_amount = ?, payment_status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		b.TotalAmount, b.PaidAmount, string(b.PaymentStatus), b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	b.Version++
	return nil
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var ref sql.NullString
	var status, startDate, bookingDate string

	err := row.Scan(
		&b.ID, &b.OrganisationID, &ref, &b.TotalAmount, &b.PaidAmount,
		&status, &b.Confirmed, &b.Guardian.FirstName, &b.Guardian.LastName, &b.ActivityName,
		&startDate, &bookingDate, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.StructuredReference = ref.String
	b.PaymentStatus = domain.PaymentStatus(status)
	b.ActivityStartDate = parseTime(startDate)
	b.BookingDate = parseTime(bookingDate)
	return &b, nil
}
