package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/channel_manager/internal/core/domain"
)

// LedgerRepository persists availability records. Update is an optimistic
// compare-and-swap on Version and returns domain.ErrBusy when the row moved
// underneath the caller.
type LedgerRepository interface {
	Get(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time) (*domain.AvailabilityRecord, error)
	GetOrCreate(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time, totalUnits int) (*domain.AvailabilityRecord, error)
	Update(ctx context.Context, record *domain.AvailabilityRecord) error
	GetRange(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay) ([]*domain.AvailabilityRecord, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByExternalID(ctx context.Context, channel, externalBookingID string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	GetNoShowCandidates(ctx context.Context, checkInBefore time.Time) ([]*domain.Booking, error)
}

// RoomDirectory resolves room identity and physical capacity. Property and
// room management itself lives outside this service.
type RoomDirectory interface {
	RoomCapacity(ctx context.Context, propertyID, roomID uuid.UUID) (int, error)
	ResolveRoom(ctx context.Context, channel, propertyID, externalRoomCode string) (uuid.UUID, uuid.UUID, error)
	DefaultRoom(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error)
}

type Notification struct {
	Event      string    `json:"event"`
	PropertyID uuid.UUID `json:"property_id"`
	RoomID     uuid.UUID `json:"room_id"`
	BookingID  uuid.UUID `json:"booking_id,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Dates      []string  `json:"dates,omitempty"`
}

// Notifier is fire-and-forget: implementations log and swallow delivery
// failures, they never propagate them into the calling transaction.
type Notifier interface {
	Emit(ctx context.Context, n Notification)
}

// InventoryLedger is the reservation-facing contract of the availability
// ledger.
type InventoryLedger interface {
	Reserve(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error
	Release(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, bookingID uuid.UUID) error
	Rebind(ctx context.Context, propertyID, roomID uuid.UUID, oldStay, newStay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error
	Block(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error
	Unblock(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int) error
	SetBlocked(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error
	SetRate(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, rate float64, currency string) error
}
