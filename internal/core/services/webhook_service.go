package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/ports"
)

const failedQueueKey = "webhook:failed"

// busyRetries bounds the backoff applied when the ledger reports contention
// before the event is surfaced as a failure.
const busyRetries = 3

// WebhookService is the ingestion pipeline: dedup, vocabulary normalization,
// dispatch. One bad event never halts the events behind it.
type WebhookService struct {
	reservations *ReservationService
	bookings     ports.BookingRepository
	rooms        ports.RoomDirectory
	ledger       ports.InventoryLedger
	rdb          *redis.Client
	dedupTTL     time.Duration

	mu             sync.Mutex
	totalProcessed int64
	totalFailed    int64
	lastProcessed  time.Time
	byChannel      map[string]int64
	byEvent        map[string]int64
}

func NewWebhookService(reservations *ReservationService, bookings ports.BookingRepository, rooms ports.RoomDirectory, ledger ports.InventoryLedger, rdb *redis.Client, dedupTTL time.Duration) *WebhookService {
	return &WebhookService{
		reservations: reservations,
		bookings:     bookings,
		rooms:        rooms,
		ledger:       ledger,
		rdb:          rdb,
		dedupTTL:     dedupTTL,
		byChannel:    make(map[string]int64),
		byEvent:      make(map[string]int64),
	}
}

// Process handles a single normalized channel event. A nil return covers both
// real work and idempotent no-op skips; the caller acknowledges either way.
func (s *WebhookService) Process(ctx context.Context, ev domain.WebhookEvent) error {
	err := s.dispatch(ctx, ev)

	if errors.Is(err, domain.ErrDuplicateEvent) {
		log.Printf("[Webhook] DEBUG duplicate %s event from %s (external id %s), skipping", ev.Event, ev.Channel, ev.Data.ExternalBookingID)
		s.markProcessed(ev)
		return nil
	}

	if err != nil {
		s.markFailed(ev, err)
		return err
	}

	s.markProcessed(ev)

	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, ev domain.WebhookEvent) error {
	switch ev.Event {
	case domain.EventBookingCreated:
		return s.handleCreated(ctx, ev)
	case domain.EventBookingUpdated:
		if err := s.checkDedup(ctx, ev); err != nil {
			return err
		}
		return s.handleUpdated(ctx, ev)
	case domain.EventBookingCancelled:
		if err := s.checkDedup(ctx, ev); err != nil {
			return err
		}
		return s.handleCancelled(ctx, ev)
	case domain.EventCalendarUpdated:
		return s.handleCalendar(ctx, ev)
	case domain.EventRateUpdated:
		return s.handleRate(ctx, ev)
	case domain.EventPropertyCreated, domain.EventPropertyUpdated:
		// Property CRUD lives in the directory service; acknowledged here so
		// the channel stops retrying.
		log.Printf("[Webhook] %s from %s acknowledged", ev.Event, ev.Channel)
		return nil
	default:
		log.Printf("[Webhook] WARN unsupported event %q from %s, acknowledged", ev.Event, ev.Channel)
		return nil
	}
}

// checkDedup sets the replay marker for update/cancel events. The key carries
// the event timestamp so only exact redeliveries match; a later update for the
// same booking is new work, not a replay. Creates are deduplicated against the
// booking store instead, since a channel may legitimately resend a create
// after a transient failure.
func (s *WebhookService) checkDedup(ctx context.Context, ev domain.WebhookEvent) error {
	if s.rdb == nil || ev.Data.ExternalBookingID == "" {
		return nil
	}

	key := fmt.Sprintf("webhook:dedup:%s:%s:%s:%s", ev.Channel, ev.Event, ev.Data.ExternalBookingID, ev.Timestamp.UTC().Format(time.RFC3339))

	set, err := s.rdb.SetNX(ctx, key, "1", s.dedupTTL).Result()
	if err != nil {
		// Redis being down must not stop ingestion; the pipeline stays
		// idempotent through the store checks.
		log.Printf("[Webhook] dedup check unavailable: %v", err)
		return nil
	}

	if !set {
		return domain.ErrDuplicateEvent
	}

	return nil
}

func (s *WebhookService) handleCreated(ctx context.Context, ev domain.WebhookEvent) error {
	if ev.Data.ExternalBookingID == "" {
		return fmt.Errorf("booking.created from %s missing external_booking_id", ev.Channel)
	}

	if _, err := s.bookings.GetByExternalID(ctx, ev.Channel, ev.Data.ExternalBookingID); err == nil {
		log.Printf("[Webhook] booking %s/%s already exists, replay skipped", ev.Channel, ev.Data.ExternalBookingID)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	// An absent status on a create means confirmed intent; only an explicit
	// status goes through the vocabulary table.
	status := domain.BookingConfirmed
	if ev.Data.Status != "" {
		status = domain.NormalizeChannelStatus(ev.Channel, ev.Data.Status)
	}
	if status == domain.BookingCancelled || status == domain.BookingNoShow {
		log.Printf("[Webhook] booking.created for %s/%s arrived already %s, nothing to reserve", ev.Channel, ev.Data.ExternalBookingID, status)
		return nil
	}

	propertyID, roomID, err := s.resolveRoom(ctx, ev)
	if err != nil {
		return err
	}

	req := CreateBookingRequest{
		PropertyID:        propertyID.String(),
		RoomID:            roomID.String(),
		CheckIn:           ev.Data.CheckIn,
		CheckOut:          ev.Data.CheckOut,
		Channel:           ev.Channel,
		ExternalBookingID: ev.Data.ExternalBookingID,
		Guest: domain.GuestInfo{
			Name:   ev.Data.GuestName,
			Email:  ev.Data.GuestEmail,
			Phone:  ev.Data.GuestPhone,
			Adults: ev.Data.Adults,
			Kids:   ev.Data.Kids,
		},
		Pricing: domain.Pricing{
			Total:    ev.Data.Total,
			Currency: ev.Data.Currency,
		},
		Notes:     ev.Data.Notes,
		CreatedBy: "channel:" + ev.Channel,
		// Channel bookings are confirmed intent unless the channel itself
		// says the request is still pending.
		InitialStatus: domain.BookingConfirmed,
	}
	if status == domain.BookingPending {
		req.InitialStatus = domain.BookingPending
	}

	var booking *domain.Booking
	err = s.retryBusy(ctx, func() error {
		var err error
		booking, err = s.reservations.CreateBooking(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	// Channel bookings arrive as confirmed intent; anything beyond Confirmed
	// (a checked-in import) is applied as a follow-up transition.
	if status == domain.BookingCheckedIn || status == domain.BookingCheckedOut {
		if err := s.applyStatus(ctx, booking, status, ev.Data.Reason); err != nil {
			log.Printf("[Webhook] WARN imported booking %s/%s created but status %s not applied: %v", ev.Channel, ev.Data.ExternalBookingID, status, err)
		}
	}

	return nil
}

// resolveRoom maps external identifiers to internal ones, falling back to the
// property's default room when the mapping is ambiguous. The fallback is a
// logged policy, never an error to the channel.
func (s *WebhookService) resolveRoom(ctx context.Context, ev domain.WebhookEvent) (uuid.UUID, uuid.UUID, error) {
	propertyID, roomID, err := s.rooms.ResolveRoom(ctx, ev.Channel, ev.Data.PropertyID, ev.Data.ExternalRoomCode)
	if err == nil {
		return propertyID, roomID, nil
	}

	if !errors.Is(err, domain.ErrMappingAmbiguous) {
		return uuid.Nil, uuid.Nil, err
	}

	if propertyID == uuid.Nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("cannot resolve property %q from %s: %w", ev.Data.PropertyID, ev.Channel, err)
	}

	log.Printf("[Webhook] WARN ambiguous room code %q from %s, falling back to property default", ev.Data.ExternalRoomCode, ev.Channel)

	roomID, err = s.rooms.DefaultRoom(ctx, propertyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("no default room for property %s: %w", propertyID, err)
	}

	return propertyID, roomID, nil
}

func (s *WebhookService) handleUpdated(ctx context.Context, ev domain.WebhookEvent) error {
	booking, err := s.bookings.GetByExternalID(ctx, ev.Channel, ev.Data.ExternalBookingID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[Webhook] WARN booking.updated for unknown booking %s/%s, skipped", ev.Channel, ev.Data.ExternalBookingID)
		return nil
	}
	if err != nil {
		return err
	}

	if ev.Data.CheckIn != "" && ev.Data.CheckOut != "" {
		newStay, err := ParseStay(ev.Data.CheckIn, ev.Data.CheckOut)
		if err != nil {
			return err
		}

		if !booking.Stay.Equal(newStay) {
			err = s.retryBusy(ctx, func() error {
				updated, err := s.reservations.ChangeDates(ctx, booking.ID, ev.Data.CheckIn, ev.Data.CheckOut)
				if err == nil {
					booking = updated
				}
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	if ev.Data.Status != "" {
		target := domain.NormalizeChannelStatus(ev.Channel, ev.Data.Status)
		if err := s.applyStatus(ctx, booking, target, ev.Data.Reason); err != nil {
			return err
		}
	}

	return s.applyDetailUpdates(ctx, booking, ev.Data)
}

// applyStatus walks the booking to the channel-reported status through the
// state machine. Matching status is a no-op.
func (s *WebhookService) applyStatus(ctx context.Context, booking *domain.Booking, target domain.BookingStatus, reason string) error {
	if booking.Status == target {
		return nil
	}

	var err error
	switch target {
	case domain.BookingConfirmed:
		_, err = s.reservations.Confirm(ctx, booking.ID)
	case domain.BookingCheckedIn:
		_, err = s.reservations.CheckIn(ctx, booking.ID)
	case domain.BookingCheckedOut:
		_, err = s.reservations.CheckOut(ctx, booking.ID)
	case domain.BookingCancelled:
		err = s.retryBusy(ctx, func() error {
			_, err := s.reservations.Cancel(ctx, booking.ID, reason)
			return err
		})
	case domain.BookingNoShow:
		err = s.retryBusy(ctx, func() error {
			_, err := s.reservations.MarkNoShow(ctx, booking.ID)
			return err
		})
	case domain.BookingPending:
		// Unrecognized vocabulary normalizes to Pending; there is no
		// backward transition, so nothing to apply.
		log.Printf("[Webhook] status for booking %s normalized to PENDING, no transition applied", booking.ID)
	}

	return err
}

func (s *WebhookService) applyDetailUpdates(ctx context.Context, booking *domain.Booking, data domain.WebhookPayload) error {
	var (
		guest   *domain.GuestInfo
		pricing *domain.Pricing
		notes   *string
	)

	if data.GuestName != "" || data.GuestEmail != "" || data.GuestPhone != "" || data.Adults > 0 {
		g := booking.Guest
		if data.GuestName != "" {
			g.Name = data.GuestName
		}
		if data.GuestEmail != "" {
			g.Email = data.GuestEmail
		}
		if data.GuestPhone != "" {
			g.Phone = data.GuestPhone
		}
		if data.Adults > 0 {
			g.Adults = data.Adults
			g.Kids = data.Kids
		}
		guest = &g
	}

	if data.Total > 0 {
		pricing = &domain.Pricing{Total: data.Total, Currency: data.Currency}
	}

	if data.Notes != "" {
		notes = &data.Notes
	}

	if guest == nil && pricing == nil && notes == nil {
		return nil
	}

	_, err := s.reservations.UpdateDetails(ctx, booking.ID, guest, pricing, notes)

	return err
}

func (s *WebhookService) handleCancelled(ctx context.Context, ev domain.WebhookEvent) error {
	booking, err := s.bookings.GetByExternalID(ctx, ev.Channel, ev.Data.ExternalBookingID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[Webhook] booking.cancelled for unknown booking %s/%s, skipped", ev.Channel, ev.Data.ExternalBookingID)
		return nil
	}
	if err != nil {
		return err
	}

	return s.retryBusy(ctx, func() error {
		_, err := s.reservations.Cancel(ctx, booking.ID, ev.Data.Reason)
		return err
	})
}

// handleCalendar mirrors channel-side holds. The reported blocked_units is
// absolute state, not a delta, so an at-least-once redelivery lands on the
// same value; zero clears the hold.
func (s *WebhookService) handleCalendar(ctx context.Context, ev domain.WebhookEvent) error {
	propertyID, roomID, err := s.resolveRoom(ctx, ev)
	if err != nil {
		return err
	}

	stay, err := s.eventStay(ev)
	if err != nil {
		return err
	}

	return s.retryBusy(ctx, func() error {
		return s.ledger.SetBlocked(ctx, propertyID, roomID, stay, ev.Data.BlockedUnits, "calendar sync from "+ev.Channel)
	})
}

func (s *WebhookService) handleRate(ctx context.Context, ev domain.WebhookEvent) error {
	if ev.Data.Rate <= 0 {
		return fmt.Errorf("rate.updated from %s carries no rate", ev.Channel)
	}

	propertyID, roomID, err := s.resolveRoom(ctx, ev)
	if err != nil {
		return err
	}

	stay, err := s.eventStay(ev)
	if err != nil {
		return err
	}

	return s.retryBusy(ctx, func() error {
		return s.ledger.SetRate(ctx, propertyID, roomID, stay, ev.Data.Rate, ev.Data.Currency)
	})
}

// eventStay derives the affected date range: an explicit range when given,
// otherwise the single date.
func (s *WebhookService) eventStay(ev domain.WebhookEvent) (domain.Stay, error) {
	if ev.Data.CheckIn != "" && ev.Data.CheckOut != "" {
		return ParseStay(ev.Data.CheckIn, ev.Data.CheckOut)
	}

	if ev.Data.Date == "" {
		return domain.Stay{}, fmt.Errorf("%s from %s specifies no date", ev.Event, ev.Channel)
	}

	day, err := time.Parse(domain.DateLayout, ev.Data.Date)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", ev.Data.Date)
	}

	return domain.NewStay(day, day.AddDate(0, 0, 1))
}

func (s *WebhookService) retryBusy(ctx context.Context, fn func() error) error {
	var err error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); !errors.Is(err, domain.ErrBusy) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return err
}

func (s *WebhookService) markProcessed(ev domain.WebhookEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalProcessed++
	s.lastProcessed = time.Now().UTC()
	s.byChannel[ev.Channel]++
	s.byEvent[ev.Event]++
}

func (s *WebhookService) markFailed(ev domain.WebhookEvent, cause error) {
	s.mu.Lock()
	s.totalFailed++
	s.byChannel[ev.Channel]++
	s.byEvent[ev.Event]++
	s.mu.Unlock()

	log.Printf("[Webhook] processing failed: channel=%s event=%s external_id=%s err=%v", ev.Channel, ev.Event, ev.Data.ExternalBookingID, cause)

	// Failed events go to the operator queue with full context for manual
	// replay; they are never silently dropped.
	if s.rdb == nil {
		return
	}

	entry, err := json.Marshal(map[string]any{
		"event":     ev,
		"error":     cause.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := s.rdb.LPush(context.Background(), failedQueueKey, entry).Err(); err != nil {
		log.Printf("[Webhook] operator queue push failed: %v", err)
	}
}

// StatusSnapshot is the cumulative counter view for GET /webhooks/status.
type StatusSnapshot struct {
	TotalProcessed int64            `json:"totalProcessed"`
	TotalFailed    int64            `json:"totalFailed"`
	LastProcessed  string           `json:"lastProcessed,omitempty"`
	ByChannel      map[string]int64 `json:"byChannel"`
	ByEvent        map[string]int64 `json:"byEvent"`
}

func (s *WebhookService) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatusSnapshot{
		TotalProcessed: s.totalProcessed,
		TotalFailed:    s.totalFailed,
		ByChannel:      make(map[string]int64, len(s.byChannel)),
		ByEvent:        make(map[string]int64, len(s.byEvent)),
	}

	if !s.lastProcessed.IsZero() {
		snap.LastProcessed = s.lastProcessed.Format(time.RFC3339)
	}

	for k, v := range s.byChannel {
		snap.ByChannel[k] = v
	}
	for k, v := range s.byEvent {
		snap.ByEvent[k] = v
	}

	return snap
}
