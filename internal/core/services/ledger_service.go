package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/ports"
	"github.com/srgjo27/channel_manager/internal/platform/keylock"
)

// LedgerService is the single writer of availability records. Every mutation
// on a (property, room, date) key is serialized behind a per-key lock; keys
// are acquired in ascending date order so overlapping ranges cannot deadlock.
type LedgerService struct {
	repo     ports.LedgerRepository
	rooms    ports.RoomDirectory
	notifier ports.Notifier
	locks    *keylock.KeyLock
}

func NewLedgerService(repo ports.LedgerRepository, rooms ports.RoomDirectory, notifier ports.Notifier, lockWait time.Duration) *LedgerService {
	return &LedgerService{
		repo:     repo,
		rooms:    rooms,
		notifier: notifier,
		locks:    keylock.New(lockWait),
	}
}

func availKey(propertyID, roomID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("avail:%s:%s:%s", propertyID, roomID, date.Format(domain.DateLayout))
}

func nightKeys(propertyID, roomID uuid.UUID, nights []time.Time) []string {
	keys := make([]string, 0, len(nights))
	for _, night := range nights {
		keys = append(keys, availKey(propertyID, roomID, night))
	}

	return keys
}

func mapLockErr(err error) error {
	if errors.Is(err, keylock.ErrTimeout) {
		return domain.ErrBusy
	}

	return err
}

// withLocks runs fn while holding every key, then releases before returning
// so callers never notify or do other I/O under a lock.
func (s *LedgerService) withLocks(ctx context.Context, keys []string, fn func() error) error {
	if err := s.locks.AcquireAll(ctx, keys); err != nil {
		return mapLockErr(err)
	}
	defer s.locks.ReleaseAll(keys)

	return fn()
}

// Reserve commits one unit for every night of the stay, all-or-nothing: if
// any single night lacks capacity the whole reservation fails and nights
// already committed are rolled back.
func (s *LedgerService) Reserve(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error {
	nights := stay.Nights()

	err := s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		return s.reserveNights(ctx, propertyID, roomID, nights, channel, bookingID, guestRef)
	})
	if err != nil {
		return err
	}

	s.notifyInventory(ctx, propertyID, roomID, channel, stay)

	return nil
}

// reserveNights assumes the caller holds the locks for every night.
func (s *LedgerService) reserveNights(ctx context.Context, propertyID, roomID uuid.UUID, nights []time.Time, channel string, bookingID uuid.UUID, guestRef string) error {
	if len(nights) == 0 {
		return nil
	}

	capacity, err := s.rooms.RoomCapacity(ctx, propertyID, roomID)
	if err != nil {
		return fmt.Errorf("room capacity lookup: %w", err)
	}

	var committed []time.Time
	for _, night := range nights {
		rec, err := s.repo.GetOrCreate(ctx, propertyID, roomID, night, capacity)
		if err != nil {
			s.releaseNights(ctx, propertyID, roomID, committed, bookingID)
			return err
		}

		entry := domain.CommittedEntry{
			Channel:     channel,
			BookingID:   bookingID,
			GuestRef:    guestRef,
			CommittedAt: time.Now().UTC(),
		}

		if err := rec.Commit(entry); err != nil {
			s.releaseNights(ctx, propertyID, roomID, committed, bookingID)
			return err
		}

		if err := s.repo.Update(ctx, rec); err != nil {
			s.releaseNights(ctx, propertyID, roomID, committed, bookingID)
			return err
		}

		committed = append(committed, night)
	}

	return nil
}

// Release removes the booking's committed entries for every night of the
// stay. Nights with no matching entry are skipped, so Release is idempotent.
func (s *LedgerService) Release(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, bookingID uuid.UUID) error {
	nights := stay.Nights()

	err := s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		s.releaseNights(ctx, propertyID, roomID, nights, bookingID)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyInventory(ctx, propertyID, roomID, "", stay)

	return nil
}

func (s *LedgerService) releaseNights(ctx context.Context, propertyID, roomID uuid.UUID, nights []time.Time, bookingID uuid.UUID) {
	for _, night := range nights {
		rec, err := s.repo.Get(ctx, propertyID, roomID, night)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Printf("[Ledger] release read failed for %s: %v", night.Format(domain.DateLayout), err)
			}
			continue
		}

		if !rec.ReleaseBooking(bookingID) {
			continue
		}

		if err := s.repo.Update(ctx, rec); err != nil {
			log.Printf("[Ledger] ALERT release write failed for booking %s night %s: %v", bookingID, night.Format(domain.DateLayout), err)
		}
	}
}

// Rebind moves a booking to a new stay. Only the added nights are reserved
// and only the removed nights released, so a failed move leaves every record
// exactly as it was, original timestamps included.
func (s *LedgerService) Rebind(ctx context.Context, propertyID, roomID uuid.UUID, oldStay, newStay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error {
	added := nightsDiff(newStay, oldStay)
	removed := nightsDiff(oldStay, newStay)

	union := append(nightKeys(propertyID, roomID, added), nightKeys(propertyID, roomID, removed)...)

	err := s.withLocks(ctx, union, func() error {
		if err := s.reserveNights(ctx, propertyID, roomID, added, channel, bookingID, guestRef); err != nil {
			return err
		}

		s.releaseNights(ctx, propertyID, roomID, removed, bookingID)

		return nil
	})
	if err != nil {
		return err
	}

	s.notifyInventory(ctx, propertyID, roomID, channel, domain.Stay{CheckIn: minDate(oldStay.CheckIn, newStay.CheckIn), CheckOut: maxDate(oldStay.CheckOut, newStay.CheckOut)})

	return nil
}

// nightsDiff returns the nights of a not occupied by b, ascending.
func nightsDiff(a, b domain.Stay) []time.Time {
	var out []time.Time
	for _, night := range a.Nights() {
		if !b.Contains(night) {
			out = append(out, night)
		}
	}

	return out
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Block places a maintenance/owner hold on every night of the range. Fails
// with ErrNoAvailability if any night cannot absorb the hold, rolling back
// nights already blocked.
func (s *LedgerService) Block(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error {
	if units <= 0 {
		return fmt.Errorf("block units must be positive")
	}

	nights := stay.Nights()

	err := s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		capacity, err := s.rooms.RoomCapacity(ctx, propertyID, roomID)
		if err != nil {
			return fmt.Errorf("room capacity lookup: %w", err)
		}

		var blocked []time.Time
		for _, night := range nights {
			rec, err := s.repo.GetOrCreate(ctx, propertyID, roomID, night, capacity)
			if err == nil && rec.AvailableUnits() < units {
				err = domain.ErrNoAvailability
			}
			if err == nil {
				rec.BlockedUnits += units
				err = s.repo.Update(ctx, rec)
			}

			if err != nil {
				s.unblockNights(ctx, propertyID, roomID, blocked, units)
				return err
			}

			blocked = append(blocked, night)
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Ledger] blocked %d unit(s) %s..%s room %s: %s", units, stay.CheckIn.Format(domain.DateLayout), stay.CheckOut.Format(domain.DateLayout), roomID, reason)
	s.notifyInventory(ctx, propertyID, roomID, "", stay)

	return nil
}

// Unblock lifts a hold. Nights with no hold are left alone; units <= 0
// clears the hold entirely.
func (s *LedgerService) Unblock(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int) error {
	nights := stay.Nights()

	err := s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		s.unblockNights(ctx, propertyID, roomID, nights, units)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyInventory(ctx, propertyID, roomID, "", stay)

	return nil
}

func (s *LedgerService) unblockNights(ctx context.Context, propertyID, roomID uuid.UUID, nights []time.Time, units int) {
	for _, night := range nights {
		rec, err := s.repo.Get(ctx, propertyID, roomID, night)
		if err != nil {
			continue
		}

		if rec.BlockedUnits == 0 {
			continue
		}

		if units <= 0 {
			rec.BlockedUnits = 0
		} else {
			rec.BlockedUnits -= units
			if rec.BlockedUnits < 0 {
				rec.BlockedUnits = 0
			}
		}

		if err := s.repo.Update(ctx, rec); err != nil {
			log.Printf("[Ledger] unblock write failed for night %s: %v", night.Format(domain.DateLayout), err)
		}
	}
}

// SetBlocked pins the hold at an absolute level for every night of the range.
// Channel calendars report state, not deltas, so a redelivered event lands on
// the same value. Fails with ErrNoAvailability when committed bookings leave
// no room for the hold, restoring nights already written.
func (s *LedgerService) SetBlocked(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error {
	if units < 0 {
		return fmt.Errorf("blocked units cannot be negative")
	}

	nights := stay.Nights()

	err := s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		capacity, err := s.rooms.RoomCapacity(ctx, propertyID, roomID)
		if err != nil {
			return fmt.Errorf("room capacity lookup: %w", err)
		}

		var applied []appliedHold
		for _, night := range nights {
			rec, err := s.repo.GetOrCreate(ctx, propertyID, roomID, night, capacity)
			if err == nil && len(rec.Committed)+units > rec.TotalUnits {
				err = domain.ErrNoAvailability
			}

			var prev int
			if err == nil {
				prev = rec.BlockedUnits
				rec.BlockedUnits = units
				err = s.repo.Update(ctx, rec)
			}

			if err != nil {
				s.restoreHolds(ctx, propertyID, roomID, applied)
				return err
			}

			applied = append(applied, appliedHold{night: night, units: prev})
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Ledger] hold set to %d unit(s) %s..%s room %s: %s", units, stay.CheckIn.Format(domain.DateLayout), stay.CheckOut.Format(domain.DateLayout), roomID, reason)
	s.notifyInventory(ctx, propertyID, roomID, "", stay)

	return nil
}

type appliedHold struct {
	night time.Time
	units int
}

func (s *LedgerService) restoreHolds(ctx context.Context, propertyID, roomID uuid.UUID, applied []appliedHold) {
	for _, hold := range applied {
		rec, err := s.repo.Get(ctx, propertyID, roomID, hold.night)
		if err != nil {
			log.Printf("[Ledger] ALERT hold restore read failed for night %s: %v", hold.night.Format(domain.DateLayout), err)
			continue
		}

		rec.BlockedUnits = hold.units
		if err := s.repo.Update(ctx, rec); err != nil {
			log.Printf("[Ledger] ALERT hold restore write failed for night %s: %v", hold.night.Format(domain.DateLayout), err)
		}
	}
}

// SetRate updates the nightly rate across the range.
func (s *LedgerService) SetRate(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, rate float64, currency string) error {
	nights := stay.Nights()

	return s.withLocks(ctx, nightKeys(propertyID, roomID, nights), func() error {
		capacity, err := s.rooms.RoomCapacity(ctx, propertyID, roomID)
		if err != nil {
			return fmt.Errorf("room capacity lookup: %w", err)
		}

		for _, night := range nights {
			rec, err := s.repo.GetOrCreate(ctx, propertyID, roomID, night, capacity)
			if err != nil {
				return err
			}

			rec.Rate = rate
			if currency != "" {
				rec.Currency = currency
			}

			if err := s.repo.Update(ctx, rec); err != nil {
				return err
			}
		}

		return nil
	})
}

// NightView is the read model for the availability API.
type NightView struct {
	Date           string  `json:"date"`
	TotalUnits     int     `json:"total_units"`
	AvailableUnits int     `json:"available_units"`
	BlockedUnits   int     `json:"blocked_units"`
	CommittedCount int     `json:"committed_count"`
	Rate           float64 `json:"rate,omitempty"`
	Currency       string  `json:"currency,omitempty"`
}

// Availability reads the range without taking locks; records never touched
// report full capacity.
func (s *LedgerService) Availability(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay) ([]NightView, error) {
	capacity, err := s.rooms.RoomCapacity(ctx, propertyID, roomID)
	if err != nil {
		return nil, err
	}

	views := make([]NightView, 0, len(stay.Nights()))
	for _, night := range stay.Nights() {
		view := NightView{
			Date:           night.Format(domain.DateLayout),
			TotalUnits:     capacity,
			AvailableUnits: capacity,
		}

		rec, err := s.repo.Get(ctx, propertyID, roomID, night)
		if err == nil {
			view.TotalUnits = rec.TotalUnits
			view.AvailableUnits = rec.AvailableUnits()
			view.BlockedUnits = rec.BlockedUnits
			view.CommittedCount = len(rec.Committed)
			view.Rate = rec.Rate
			view.Currency = rec.Currency
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		views = append(views, view)
	}

	return views, nil
}

func (s *LedgerService) notifyInventory(ctx context.Context, propertyID, roomID uuid.UUID, channel string, stay domain.Stay) {
	if s.notifier == nil {
		return
	}

	dates := make([]string, 0, len(stay.Nights()))
	for _, night := range stay.Nights() {
		dates = append(dates, night.Format(domain.DateLayout))
	}

	s.notifier.Emit(ctx, ports.Notification{
		Event:      "inventory:updated",
		PropertyID: propertyID,
		RoomID:     roomID,
		Channel:    channel,
		Dates:      dates,
	})
}
