package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

// Directory reads room identity from the property service's tables. This
// service never writes them.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) RoomCapacity(ctx context.Context, propertyID, roomID uuid.UUID) (int, error) {
	query := `SELECT total_units FROM rooms WHERE id = $1 AND property_id = $2`

	var capacity int
	err := d.db.QueryRowContext(ctx, query, roomID, propertyID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}

		return 0, err
	}

	return capacity, nil
}

func (d *Directory) ResolveRoom(ctx context.Context, channel, propertyID, externalRoomCode string) (uuid.UUID, uuid.UUID, error) {
	propID, err := uuid.Parse(propertyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.ErrMappingAmbiguous
	}

	query := `
	SELECT r.id
	FROM room_channel_codes c
	JOIN rooms r ON r.id = c.room_id
	WHERE c.channel = $1 AND c.code = $2 AND r.property_id = $3
	`

	var roomID uuid.UUID
	err = d.db.QueryRowContext(ctx, query, channel, externalRoomCode, propID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return propID, uuid.Nil, domain.ErrMappingAmbiguous
		}

		return propID, uuid.Nil, err
	}

	return propID, roomID, nil
}

func (d *Directory) DefaultRoom(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	query := `
	SELECT id FROM rooms
	WHERE property_id = $1
	ORDER BY is_default DESC, created_at
	LIMIT 1
	`

	var roomID uuid.UUID
	err := d.db.QueryRowContext(ctx, query, propertyID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, domain.ErrNotFound
		}

		return uuid.Nil, err
	}

	return roomID, nil
}
