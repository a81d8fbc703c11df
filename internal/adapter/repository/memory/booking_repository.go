package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

type BookingRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*domain.Booking
	external map[string]uuid.UUID
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		bookings: make(map[uuid.UUID]*domain.Booking),
		external: make(map[string]uuid.UUID),
	}
}

func externalKey(channel, externalBookingID string) string {
	return channel + "|" + externalBookingID
}

func copyBooking(b *domain.Booking) *domain.Booking {
	cp := *b
	return &cp
}

func (s *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[booking.ID]; ok {
		return domain.ErrDuplicateEvent
	}

	if booking.ExternalBookingID != "" {
		key := externalKey(booking.Channel, booking.ExternalBookingID)
		if _, ok := s.external[key]; ok {
			return domain.ErrDuplicateEvent
		}
		s.external[key] = booking.ID
	}

	s.bookings[booking.ID] = copyBooking(booking)

	return nil
}

func (s *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return copyBooking(b), nil
}

func (s *BookingRepository) GetByExternalID(ctx context.Context, channel, externalBookingID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.external[externalKey(channel, externalBookingID)]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return copyBooking(s.bookings[id]), nil
}

func (s *BookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[booking.ID]; !ok {
		return domain.ErrNotFound
	}

	s.bookings[booking.ID] = copyBooking(booking)

	return nil
}

func (s *BookingRepository) GetNoShowCandidates(ctx context.Context, checkInBefore time.Time) ([]*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.Status == domain.BookingConfirmed && b.Stay.CheckIn.Before(checkInBefore) {
			out = append(out, copyBooking(b))
		}
	}

	return out, nil
}
