package domain

import (
	"log"
	"strings"
	"time"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingUpdated   = "booking.updated"
	EventBookingCancelled = "booking.cancelled"
	EventPropertyCreated  = "property.created"
	EventPropertyUpdated  = "property.updated"
	EventCalendarUpdated  = "calendar.updated"
	EventRateUpdated      = "rate.updated"
)

func KnownEvent(event string) bool {
	switch event {
	case EventBookingCreated, EventBookingUpdated, EventBookingCancelled,
		EventPropertyCreated, EventPropertyUpdated,
		EventCalendarUpdated, EventRateUpdated:
		return true
	}

	return false
}

// WebhookPayload is the normalized body of a channel event. Channel-specific
// formats are translated before they reach the pipeline.
type WebhookPayload struct {
	ExternalBookingID string    `json:"external_booking_id"`
	ExternalRoomCode  string    `json:"external_room_code"`
	PropertyID        string    `json:"property_id"`
	GuestName         string    `json:"guest_name"`
	GuestEmail        string    `json:"guest_email"`
	GuestPhone        string    `json:"guest_phone"`
	Adults            int       `json:"adults"`
	Kids              int       `json:"kids"`
	CheckIn           string    `json:"check_in"`
	CheckOut          string    `json:"check_out"`
	Status            string    `json:"status"`
	Total             float64   `json:"total"`
	Currency          string    `json:"currency"`
	Notes             string    `json:"notes"`
	Reason            string    `json:"reason"`
	Date              string    `json:"date"`
	Rate              float64   `json:"rate"`
	BlockedUnits      int       `json:"blocked_units"`
	ReceivedAt        time.Time `json:"-"`
}

// WebhookEvent is transient: it drives one transition and is not persisted
// beyond the dedup window.
type WebhookEvent struct {
	Channel   string         `json:"channel"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      WebhookPayload `json:"data"`
}

// channelStatuses maps every status word the channels are known to send onto
// the internal lifecycle. Lookup is case-insensitive with -/_ folded.
var channelStatuses = map[string]BookingStatus{
	"pending":       BookingPending,
	"request":       BookingPending,
	"on-hold":       BookingPending,
	"confirmed":     BookingConfirmed,
	"accepted":      BookingConfirmed,
	"booked":        BookingConfirmed,
	"new":           BookingConfirmed,
	"modified":      BookingConfirmed,
	"checked-in":    BookingCheckedIn,
	"in-house":      BookingCheckedIn,
	"checked-out":   BookingCheckedOut,
	"departed":      BookingCheckedOut,
	"completed":     BookingCheckedOut,
	"cancelled":     BookingCancelled,
	"canceled":      BookingCancelled,
	"declined":      BookingCancelled,
	"guest-no-show": BookingNoShow,
	"no-show":       BookingNoShow,
}

// NormalizeChannelStatus translates a channel's status vocabulary to the
// internal state machine. Unrecognized values map to Pending with a warning,
// never to a guess.
func NormalizeChannelStatus(channel, raw string) BookingStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")

	if key == "" {
		return BookingPending
	}

	if status, ok := channelStatuses[key]; ok {
		return status
	}

	log.Printf("[Webhook] WARN unrecognized status %q from channel %s, defaulting to PENDING", raw, channel)

	return BookingPending
}
