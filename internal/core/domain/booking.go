package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingCheckedIn  BookingStatus = "CHECKED_IN"
	BookingCheckedOut BookingStatus = "CHECKED_OUT"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingNoShow     BookingStatus = "NO_SHOW"
)

// transitions encodes the booking lifecycle. A status missing from the map is
// terminal.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCheckedIn, BookingCancelled, BookingNoShow},
	BookingCheckedIn: {BookingCheckedOut, BookingCancelled},
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type GuestInfo struct {
	Name   string
	Email  string
	Phone  string
	Adults int
	Kids   int
}

type Pricing struct {
	Total    float64
	Currency string
}

// Booking is the durable record of reservation intent. The availability
// ledger is the record of consequence; the two must always agree.
type Booking struct {
	ID                 uuid.UUID
	PropertyID         uuid.UUID
	RoomID             uuid.UUID
	Stay               Stay
	Channel            string
	ExternalBookingID  string
	Guest              GuestInfo
	Pricing            Pricing
	Status             BookingStatus
	Notes              string
	CreatedBy          string
	CancelledAt        *time.Time
	CancellationReason string
	CheckedInAt        *time.Time
	CheckedOutAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (b *Booking) IsActive() bool {
	return !b.Status.IsTerminal()
}

// RemainingStay is the portion of the stay still holding inventory: the full
// stay before check-in, the nights from today onward once the guest is in
// house. Returns false when no nights remain.
func (b *Booking) RemainingStay(today time.Time) (Stay, bool) {
	if b.Status != BookingCheckedIn {
		return b.Stay, true
	}

	from := truncateToDay(today)
	if !from.After(b.Stay.CheckIn) {
		return b.Stay, true
	}

	if !from.Before(b.Stay.CheckOut) {
		return Stay{}, false
	}

	return Stay{CheckIn: from, CheckOut: b.Stay.CheckOut}, true
}
