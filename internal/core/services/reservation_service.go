package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/ports"
	"github.com/srgjo27/channel_manager/internal/platform/keylock"
)

type CreateBookingRequest struct {
	PropertyID        string           `json:"property_id"`
	RoomID            string           `json:"room_id"`
	CheckIn           string           `json:"check_in"`
	CheckOut          string           `json:"check_out"`
	Channel           string           `json:"channel"`
	ExternalBookingID string           `json:"external_booking_id,omitempty"`
	Guest             domain.GuestInfo `json:"guest"`
	Pricing           domain.Pricing   `json:"pricing"`
	Notes             string           `json:"notes,omitempty"`
	CreatedBy         string           `json:"created_by,omitempty"`

	// InitialStatus overrides the channel auto-confirm policy. Only Pending
	// and Confirmed are honored; the webhook pipeline sets it.
	InitialStatus domain.BookingStatus `json:"-"`
}

// ReservationService keeps the booking store and the availability ledger in
// agreement: the ledger mutates first (cheapest to roll back), the booking
// persists second, and a failed persist compensates the ledger before the
// error returns. Transitions are serialized per booking id.
type ReservationService struct {
	bookings    ports.BookingRepository
	ledger      ports.InventoryLedger
	notifier    ports.Notifier
	rdb         *redis.Client
	locks       *keylock.KeyLock
	autoConfirm map[string]bool
	now         func() time.Time
}

func NewReservationService(bookings ports.BookingRepository, ledger ports.InventoryLedger, notifier ports.Notifier, rdb *redis.Client, autoConfirmChannels []string, lockWait time.Duration) *ReservationService {
	auto := make(map[string]bool, len(autoConfirmChannels))
	for _, ch := range autoConfirmChannels {
		auto[ch] = true
	}

	return &ReservationService{
		bookings:    bookings,
		ledger:      ledger,
		notifier:    notifier,
		rdb:         rdb,
		locks:       keylock.New(lockWait),
		autoConfirm: auto,
		now:         time.Now,
	}
}

func bookingKey(id uuid.UUID) string {
	return "booking:" + id.String()
}

func (s *ReservationService) withBooking(ctx context.Context, id uuid.UUID, fn func(*domain.Booking) error) error {
	key := bookingKey(id)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return mapLockErr(err)
	}
	defer s.locks.Release(key)

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return fn(booking)
}

// CreateBooking reserves the stay and persists the booking as one logical
// unit. The booking is never stored in a state the ledger does not back.
func (s *ReservationService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("invalid property id %q", req.PropertyID)
	}

	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("invalid room id %q", req.RoomID)
	}

	stay, err := ParseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	if req.Channel == "" {
		return nil, fmt.Errorf("channel is required")
	}

	status := domain.BookingPending
	if s.autoConfirm[req.Channel] {
		status = domain.BookingConfirmed
	}
	if req.InitialStatus == domain.BookingPending || req.InitialStatus == domain.BookingConfirmed {
		status = req.InitialStatus
	}

	now := s.now().UTC()
	booking := &domain.Booking{
		ID:                uuid.New(),
		PropertyID:        propertyID,
		RoomID:            roomID,
		Stay:              stay,
		Channel:           req.Channel,
		ExternalBookingID: req.ExternalBookingID,
		Guest:             req.Guest,
		Pricing:           req.Pricing,
		Status:            status,
		Notes:             req.Notes,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Capacity is held from Pending onward so two pending bookings for the
	// last unit can never both confirm.
	if err := s.ledger.Reserve(ctx, propertyID, roomID, stay, req.Channel, booking.ID, booking.Guest.Name); err != nil {
		return nil, err
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if relErr := s.ledger.Release(ctx, propertyID, roomID, stay, booking.ID); relErr != nil {
			log.Printf("[Reservation] ALERT ledger compensation failed for booking %s: %v", booking.ID, relErr)
		}

		return nil, fmt.Errorf("persist booking: %w", err)
	}

	s.invalidateCache(ctx, propertyID, roomID)
	s.notify(ctx, "booking:created", booking)

	return booking, nil
}

// Confirm moves Pending to Confirmed. Capacity was already held at creation,
// so the ledger does not change.
func (s *ReservationService) Confirm(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if !b.Status.CanTransition(domain.BookingConfirmed) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, domain.BookingConfirmed)
		}

		b.Status = domain.BookingConfirmed
		b.UpdatedAt = s.now().UTC()

		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		out = b

		return nil
	})

	return out, err
}

func (s *ReservationService) CheckIn(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if !b.Status.CanTransition(domain.BookingCheckedIn) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, domain.BookingCheckedIn)
		}

		today := s.today()
		if today.Before(b.Stay.CheckIn) {
			return fmt.Errorf("%w: check-in date %s not reached", domain.ErrInvalidTransition, b.Stay.CheckIn.Format(domain.DateLayout))
		}

		now := s.now().UTC()
		b.Status = domain.BookingCheckedIn
		b.CheckedInAt = &now
		b.UpdatedAt = now

		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		out = b

		return nil
	})

	return out, err
}

func (s *ReservationService) CheckOut(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if !b.Status.CanTransition(domain.BookingCheckedOut) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, domain.BookingCheckedOut)
		}

		if s.today().Before(b.Stay.CheckIn) {
			return fmt.Errorf("%w: cannot check out before check-in date", domain.ErrInvalidTransition)
		}

		now := s.now().UTC()
		b.Status = domain.BookingCheckedOut
		b.CheckedOutAt = &now
		b.UpdatedAt = now

		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		out = b

		return nil
	})

	return out, err
}

// Cancel releases the booking's remaining nights and marks it cancelled.
// Cancelling an already-cancelled booking is a success no-op.
func (s *ReservationService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if b.Status == domain.BookingCancelled {
			out = b
			return nil
		}

		if !b.Status.CanTransition(domain.BookingCancelled) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, domain.BookingCancelled)
		}

		remaining, any := b.RemainingStay(s.today())
		if any {
			if err := s.ledger.Release(ctx, b.PropertyID, b.RoomID, remaining, b.ID); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		prev := b.Status
		b.Status = domain.BookingCancelled
		b.CancelledAt = &now
		b.CancellationReason = reason
		b.UpdatedAt = now

		if err := s.bookings.Update(ctx, b); err != nil {
			if any {
				if resErr := s.ledger.Reserve(ctx, b.PropertyID, b.RoomID, remaining, b.Channel, b.ID, b.Guest.Name); resErr != nil {
					log.Printf("[Reservation] ALERT ledger compensation failed cancelling booking %s: %v", b.ID, resErr)
				}
			}
			b.Status = prev

			return err
		}

		s.invalidateCache(ctx, b.PropertyID, b.RoomID)
		s.notify(ctx, "booking:cancelled", b)
		out = b

		return nil
	})

	return out, err
}

// MarkNoShow is the Confirmed-side exit when the guest never arrived.
func (s *ReservationService) MarkNoShow(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if !b.Status.CanTransition(domain.BookingNoShow) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, domain.BookingNoShow)
		}

		if s.today().Before(b.Stay.CheckIn) {
			return fmt.Errorf("%w: cannot mark no-show before check-in date", domain.ErrInvalidTransition)
		}

		if err := s.ledger.Release(ctx, b.PropertyID, b.RoomID, b.Stay, b.ID); err != nil {
			return err
		}

		b.Status = domain.BookingNoShow
		b.UpdatedAt = s.now().UTC()

		if err := s.bookings.Update(ctx, b); err != nil {
			if resErr := s.ledger.Reserve(ctx, b.PropertyID, b.RoomID, b.Stay, b.Channel, b.ID, b.Guest.Name); resErr != nil {
				log.Printf("[Reservation] ALERT ledger compensation failed on no-show %s: %v", b.ID, resErr)
			}

			return err
		}

		s.invalidateCache(ctx, b.PropertyID, b.RoomID)
		out = b

		return nil
	})

	return out, err
}

// ChangeDates rebinds the ledger to the new stay. On failure the booking's
// dates and the ledger are left exactly as they were.
func (s *ReservationService) ChangeDates(ctx context.Context, id uuid.UUID, checkIn, checkOut string) (*domain.Booking, error) {
	newStay, err := ParseStay(checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	var out *domain.Booking

	err = s.withBooking(ctx, id, func(b *domain.Booking) error {
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot change dates of %s booking", domain.ErrInvalidTransition, b.Status)
		}

		if b.Stay.Equal(newStay) {
			out = b
			return nil
		}

		oldStay := b.Stay
		if err := s.ledger.Rebind(ctx, b.PropertyID, b.RoomID, oldStay, newStay, b.Channel, b.ID, b.Guest.Name); err != nil {
			return err
		}

		b.Stay = newStay
		b.UpdatedAt = s.now().UTC()

		if err := s.bookings.Update(ctx, b); err != nil {
			if rbErr := s.ledger.Rebind(ctx, b.PropertyID, b.RoomID, newStay, oldStay, b.Channel, b.ID, b.Guest.Name); rbErr != nil {
				log.Printf("[Reservation] ALERT ledger compensation failed on date change %s: %v", b.ID, rbErr)
			}
			b.Stay = oldStay

			return err
		}

		s.invalidateCache(ctx, b.PropertyID, b.RoomID)
		out = b

		return nil
	})

	return out, err
}

// UpdateDetails applies field changes with no occupancy effect.
func (s *ReservationService) UpdateDetails(ctx context.Context, id uuid.UUID, guest *domain.GuestInfo, pricing *domain.Pricing, notes *string) (*domain.Booking, error) {
	var out *domain.Booking

	err := s.withBooking(ctx, id, func(b *domain.Booking) error {
		if guest != nil {
			b.Guest = *guest
		}
		if pricing != nil {
			b.Pricing = *pricing
		}
		if notes != nil {
			b.Notes = *notes
		}
		b.UpdatedAt = s.now().UTC()

		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		out = b

		return nil
	})

	return out, err
}

func (s *ReservationService) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// RunNoShowWorker periodically flags confirmed bookings whose check-in date
// passed the grace window without an arrival.
func (s *ReservationService) RunNoShowWorker(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[NoShowWorker] started, interval %s grace %s", interval, grace)

	for {
		select {
		case <-ctx.Done():
			log.Println("[NoShowWorker] stopped")
			return
		case <-ticker.C:
			s.processNoShows(ctx, grace)
		}
	}
}

func (s *ReservationService) processNoShows(ctx context.Context, grace time.Duration) {
	cutoff := s.now().UTC().Add(-grace)

	candidates, err := s.bookings.GetNoShowCandidates(ctx, cutoff)
	if err != nil {
		log.Printf("[NoShowWorker] fetch failed: %v", err)
		return
	}

	for _, b := range candidates {
		if _, err := s.MarkNoShow(ctx, b.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			log.Printf("[NoShowWorker] failed to mark booking %s: %v", b.ID, err)
		} else {
			log.Printf("[NoShowWorker] booking %s marked no-show, inventory released", b.ID)
		}
	}
}

func (s *ReservationService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *ReservationService) invalidateCache(ctx context.Context, propertyID, roomID uuid.UUID) {
	if s.rdb == nil {
		return
	}

	cacheKey := fmt.Sprintf("availability:%s:%s", propertyID, roomID)
	if err := s.rdb.Del(ctx, cacheKey).Err(); err != nil {
		log.Printf("[Reservation] cache invalidation failed for %s: %v", cacheKey, err)
	}
}

func (s *ReservationService) notify(ctx context.Context, event string, b *domain.Booking) {
	if s.notifier == nil {
		return
	}

	dates := make([]string, 0, len(b.Stay.Nights()))
	for _, night := range b.Stay.Nights() {
		dates = append(dates, night.Format(domain.DateLayout))
	}

	s.notifier.Emit(ctx, ports.Notification{
		Event:      event,
		PropertyID: b.PropertyID,
		RoomID:     b.RoomID,
		BookingID:  b.ID,
		Channel:    b.Channel,
		Dates:      dates,
	})
}

func ParseStay(checkIn, checkOut string) (domain.Stay, error) {
	in, err := time.Parse(domain.DateLayout, checkIn)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("invalid check_in %q: expected YYYY-MM-DD", checkIn)
	}

	out, err := time.Parse(domain.DateLayout, checkOut)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("invalid check_out %q: expected YYYY-MM-DD", checkOut)
	}

	return domain.NewStay(in, out)
}
