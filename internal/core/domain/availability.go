package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stay is a half-open date range [CheckIn, CheckOut): the departure night is
// never consumed.
type Stay struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func NewStay(checkIn, checkOut time.Time) (Stay, error) {
	in := truncateToDay(checkIn)
	out := truncateToDay(checkOut)

	if !in.Before(out) {
		return Stay{}, fmt.Errorf("check-in %s must be before check-out %s", in.Format(DateLayout), out.Format(DateLayout))
	}

	return Stay{CheckIn: in, CheckOut: out}, nil
}

const DateLayout = "2006-01-02"

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Nights returns every occupied date in ascending order.
func (s Stay) Nights() []time.Time {
	var nights []time.Time
	for d := s.CheckIn; d.Before(s.CheckOut); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}

	return nights
}

func (s Stay) Equal(other Stay) bool {
	return s.CheckIn.Equal(other.CheckIn) && s.CheckOut.Equal(other.CheckOut)
}

func (s Stay) Contains(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(s.CheckIn) && d.Before(s.CheckOut)
}

// CommittedEntry records one booking holding one unit for one night.
type CommittedEntry struct {
	Channel     string
	BookingID   uuid.UUID
	GuestRef    string
	CommittedAt time.Time
}

// AvailabilityRecord is the per (property, room, date) capacity ledger row.
// One row per date; the channel lives on the committed entry, not the key.
type AvailabilityRecord struct {
	PropertyID   uuid.UUID
	RoomID       uuid.UUID
	Date         time.Time
	TotalUnits   int
	Committed    []CommittedEntry
	BlockedUnits int
	MinStay      int
	MaxStay      int
	Rate         float64
	Currency     string
	Version      int
}

// AvailableUnits is a view over the record's inputs, recomputed on every read
// and never stored, so it cannot drift.
func (r *AvailabilityRecord) AvailableUnits() int {
	return r.TotalUnits - len(r.Committed) - r.BlockedUnits
}

// Commit appends a committed entry after re-checking capacity.
func (r *AvailabilityRecord) Commit(entry CommittedEntry) error {
	if r.AvailableUnits() <= 0 {
		return ErrNoAvailability
	}

	r.Committed = append(r.Committed, entry)

	return nil
}

// ReleaseBooking removes the entry matching bookingID. Returns false when no
// entry matched; releasing an absent entry is a no-op for callers.
func (r *AvailabilityRecord) ReleaseBooking(bookingID uuid.UUID) bool {
	for i, entry := range r.Committed {
		if entry.BookingID == bookingID {
			r.Committed = append(r.Committed[:i], r.Committed[i+1:]...)
			return true
		}
	}

	return false
}

// HoldsBooking reports whether a committed entry for bookingID exists.
func (r *AvailabilityRecord) HoldsBooking(bookingID uuid.UUID) bool {
	for _, entry := range r.Committed {
		if entry.BookingID == bookingID {
			return true
		}
	}

	return false
}
