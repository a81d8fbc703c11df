package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Get(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time) (*domain.AvailabilityRecord, error) {
	query := `
	SELECT total_units, blocked_units, min_stay, max_stay, rate, currency, version
	FROM availability
	WHERE property_id = $1 AND room_id = $2 AND date = $3
	`

	rec := &domain.AvailabilityRecord{
		PropertyID: propertyID,
		RoomID:     roomID,
		Date:       date,
	}

	err := r.db.QueryRowContext(ctx, query, propertyID, roomID, date).Scan(
		&rec.TotalUnits, &rec.BlockedUnits, &rec.MinStay, &rec.MaxStay, &rec.Rate, &rec.Currency, &rec.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	if err := r.loadCommits(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *LedgerRepository) loadCommits(ctx context.Context, rec *domain.AvailabilityRecord) error {
	query := `
	SELECT channel, booking_id, guest_ref, committed_at
	FROM availability_commits
	WHERE property_id = $1 AND room_id = $2 AND date = $3
	ORDER BY committed_at
	`

	rows, err := r.db.QueryContext(ctx, query, rec.PropertyID, rec.RoomID, rec.Date)
	if err != nil {
		return err
	}

	defer rows.Close()

	for rows.Next() {
		var entry domain.CommittedEntry
		if err := rows.Scan(&entry.Channel, &entry.BookingID, &entry.GuestRef, &entry.CommittedAt); err != nil {
			return err
		}

		rec.Committed = append(rec.Committed, entry)
	}

	return rows.Err()
}

// GetOrCreate inserts the row lazily on first touch. The conditional insert
// makes concurrent first touches converge on one row.
func (r *LedgerRepository) GetOrCreate(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time, totalUnits int) (*domain.AvailabilityRecord, error) {
	insert := `
	INSERT INTO availability (property_id, room_id, date, total_units, blocked_units, version)
	VALUES ($1, $2, $3, $4, 0, 1)
	ON CONFLICT (property_id, room_id, date) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, insert, propertyID, roomID, date, totalUnits); err != nil {
		return nil, fmt.Errorf("failed to create availability row: %w", err)
	}

	return r.Get(ctx, propertyID, roomID, date)
}

// Update writes the record back guarded by the version column; zero rows
// affected means another writer got there first.
func (r *LedgerRepository) Update(ctx context.Context, rec *domain.AvailabilityRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	update := `
	UPDATE availability
	SET total_units = $1, blocked_units = $2, min_stay = $3, max_stay = $4,
		rate = $5, currency = $6, version = version + 1
	WHERE property_id = $7 AND room_id = $8 AND date = $9 AND version = $10
	`

	result, err := tx.ExecContext(ctx, update,
		rec.TotalUnits, rec.BlockedUnits, rec.MinStay, rec.MaxStay,
		rec.Rate, rec.Currency,
		rec.PropertyID, rec.RoomID, rec.Date, rec.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return domain.ErrBusy
	}

	del := `DELETE FROM availability_commits WHERE property_id = $1 AND room_id = $2 AND date = $3`
	if _, err := tx.ExecContext(ctx, del, rec.PropertyID, rec.RoomID, rec.Date); err != nil {
		return err
	}

	insert := `
	INSERT INTO availability_commits (property_id, room_id, date, channel, booking_id, guest_ref, committed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare commit statement: %w", err)
	}

	defer stmt.Close()

	for _, entry := range rec.Committed {
		if _, err := stmt.ExecContext(ctx, rec.PropertyID, rec.RoomID, rec.Date, entry.Channel, entry.BookingID, entry.GuestRef, entry.CommittedAt); err != nil {
			return fmt.Errorf("failed to insert commit for booking %s: %w", entry.BookingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rec.Version++

	return nil
}

func (r *LedgerRepository) GetRange(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay) ([]*domain.AvailabilityRecord, error) {
	var out []*domain.AvailabilityRecord

	for _, night := range stay.Nights() {
		rec, err := r.Get(ctx, propertyID, roomID, night)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	return out, nil
}
