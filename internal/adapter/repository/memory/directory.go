package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

type room struct {
	propertyID uuid.UUID
	capacity   int
}

// Directory is an in-memory room directory seeded at startup. In production
// the property service owns this data.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]room
	codes    map[string]uuid.UUID
	defaults map[uuid.UUID]uuid.UUID
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:    make(map[uuid.UUID]room),
		codes:    make(map[string]uuid.UUID),
		defaults: make(map[uuid.UUID]uuid.UUID),
	}
}

func (d *Directory) AddRoom(propertyID, roomID uuid.UUID, capacity int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rooms[roomID] = room{propertyID: propertyID, capacity: capacity}
	if _, ok := d.defaults[propertyID]; !ok {
		d.defaults[propertyID] = roomID
	}
}

// MapCode binds a channel's external room code to a room.
func (d *Directory) MapCode(channel, code string, roomID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.codes[channel+"|"+code] = roomID
}

func (d *Directory) SetDefaultRoom(propertyID, roomID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.defaults[propertyID] = roomID
}

func (d *Directory) RoomCapacity(ctx context.Context, propertyID, roomID uuid.UUID) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[roomID]
	if !ok || r.propertyID != propertyID {
		return 0, domain.ErrNotFound
	}

	return r.capacity, nil
}

func (d *Directory) ResolveRoom(ctx context.Context, channel, propertyID, externalRoomCode string) (uuid.UUID, uuid.UUID, error) {
	propID, err := uuid.Parse(propertyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.ErrMappingAmbiguous
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	roomID, ok := d.codes[channel+"|"+externalRoomCode]
	if !ok {
		return propID, uuid.Nil, domain.ErrMappingAmbiguous
	}

	r, ok := d.rooms[roomID]
	if !ok || r.propertyID != propID {
		return propID, uuid.Nil, domain.ErrMappingAmbiguous
	}

	return propID, roomID, nil
}

func (d *Directory) DefaultRoom(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	roomID, ok := d.defaults[propertyID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}

	return roomID, nil
}
