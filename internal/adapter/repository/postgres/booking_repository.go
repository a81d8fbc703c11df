package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

const uniqueViolation = "23505"

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, property_id, room_id, check_in, check_out, channel, external_booking_id,
	guest_name, guest_email, guest_phone, adults, kids, total, currency,
	status, notes, created_by, cancelled_at, cancellation_reason,
	checked_in_at, checked_out_at, created_at, updated_at
`

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `
	INSERT INTO bookings (` + bookingColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.PropertyID, b.RoomID, b.Stay.CheckIn, b.Stay.CheckOut, b.Channel, nullString(b.ExternalBookingID),
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.Guest.Adults, b.Guest.Kids, b.Pricing.Total, b.Pricing.Currency,
		b.Status, b.Notes, b.CreatedBy, b.CancelledAt, b.CancellationReason,
		b.CheckedInAt, b.CheckedOutAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapInsertErr(err)
	}

	return nil
}

// mapInsertErr keeps the duplicate contract identical across adapters: a race
// on ux_bookings_channel_external surfaces as ErrDuplicateEvent, same as the
// memory adapter's existence check.
func mapInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrDuplicateEvent
	}

	return fmt.Errorf("failed to insert booking: %w", err)
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	return r.scanBooking(r.db.QueryRowContext(ctx, query, id))
}

func (r *BookingRepository) GetByExternalID(ctx context.Context, channel, externalBookingID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE channel = $1 AND external_booking_id = $2`

	return r.scanBooking(r.db.QueryRowContext(ctx, query, channel, externalBookingID))
}

func (r *BookingRepository) scanBooking(row *sql.Row) (*domain.Booking, error) {
	var b domain.Booking
	var externalID, notes, createdBy, cancellationReason sql.NullString

	err := row.Scan(
		&b.ID, &b.PropertyID, &b.RoomID, &b.Stay.CheckIn, &b.Stay.CheckOut, &b.Channel, &externalID,
		&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &b.Guest.Adults, &b.Guest.Kids, &b.Pricing.Total, &b.Pricing.Currency,
		&b.Status, &notes, &createdBy, &b.CancelledAt, &cancellationReason,
		&b.CheckedInAt, &b.CheckedOutAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	b.ExternalBookingID = externalID.String
	b.Notes = notes.String
	b.CreatedBy = createdBy.String
	b.CancellationReason = cancellationReason.String
	b.Stay.CheckIn = b.Stay.CheckIn.UTC()
	b.Stay.CheckOut = b.Stay.CheckOut.UTC()

	return &b, nil
}

func (r *BookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `
	UPDATE bookings
	SET check_in = $1, check_out = $2,
		guest_name = $3, guest_email = $4, guest_phone = $5, adults = $6, kids = $7,
		total = $8, currency = $9, status = $10, notes = $11,
		cancelled_at = $12, cancellation_reason = $13,
		checked_in_at = $14, checked_out_at = $15, updated_at = $16
	WHERE id = $17
	`

	result, err := r.db.ExecContext(ctx, query,
		b.Stay.CheckIn, b.Stay.CheckOut,
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.Guest.Adults, b.Guest.Kids,
		b.Pricing.Total, b.Pricing.Currency, b.Status, b.Notes,
		b.CancelledAt, b.CancellationReason,
		b.CheckedInAt, b.CheckedOutAt, b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *BookingRepository) GetNoShowCandidates(ctx context.Context, checkInBefore time.Time) ([]*domain.Booking, error) {
	query := `
	SELECT ` + bookingColumns + `
	FROM bookings
	WHERE status = $1 AND check_in < $2
	LIMIT 100
	`

	rows, err := r.db.QueryContext(ctx, query, domain.BookingConfirmed, checkInBefore)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var out []*domain.Booking
	for rows.Next() {
		var b domain.Booking
		var externalID, notes, createdBy, cancellationReason sql.NullString

		if err := rows.Scan(
			&b.ID, &b.PropertyID, &b.RoomID, &b.Stay.CheckIn, &b.Stay.CheckOut, &b.Channel, &externalID,
			&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &b.Guest.Adults, &b.Guest.Kids, &b.Pricing.Total, &b.Pricing.Currency,
			&b.Status, &notes, &createdBy, &b.CancelledAt, &cancellationReason,
			&b.CheckedInAt, &b.CheckedOutAt, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}

		b.ExternalBookingID = externalID.String
		b.Notes = notes.String
		b.CreatedBy = createdBy.String
		b.CancellationReason = cancellationReason.String
		b.Stay.CheckIn = b.Stay.CheckIn.UTC()
		b.Stay.CheckOut = b.Stay.CheckOut.UTC()

		out = append(out, &b)
	}

	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
