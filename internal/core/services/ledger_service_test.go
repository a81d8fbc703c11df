package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/channel_manager/internal/adapter/repository/memory"
	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/services"
)

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}

	return t
}

func stay(from, to string) domain.Stay {
	s, err := domain.NewStay(date(from), date(to))
	if err != nil {
		panic(err)
	}

	return s
}

type ledgerRig struct {
	svc        *services.LedgerService
	repo       *memory.LedgerRepository
	propertyID uuid.UUID
	roomID     uuid.UUID
}

func newLedgerRig(t *testing.T, capacity int) *ledgerRig {
	t.Helper()

	propertyID := uuid.New()
	roomID := uuid.New()

	dir := memory.NewDirectory()
	dir.AddRoom(propertyID, roomID, capacity)

	repo := memory.NewLedgerRepository()

	return &ledgerRig{
		svc:        services.NewLedgerService(repo, dir, nil, 2*time.Second),
		repo:       repo,
		propertyID: propertyID,
		roomID:     roomID,
	}
}

func (r *ledgerRig) available(t *testing.T, day string) int {
	t.Helper()

	views, err := r.svc.Availability(context.Background(), r.propertyID, r.roomID, stay(day, nextDay(day)))
	assert.NoError(t, err)
	assert.Len(t, views, 1)

	return views[0].AvailableUnits
}

func nextDay(s string) string {
	return date(s).AddDate(0, 0, 1).Format(domain.DateLayout)
}

func TestReserve_NoOverbookingUnderConcurrency(t *testing.T) {
	const capacity = 3

	rig := newLedgerRig(t, capacity)
	ctx := context.Background()
	night := stay("2025-10-15", "2025-10-16")

	var wg sync.WaitGroup
	results := make(chan error, capacity+1)

	for i := 0; i < capacity+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "booking.com", uuid.New(), "guest")
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, noAvailability int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, domain.ErrNoAvailability):
			noAvailability++
		}
	}

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, 1, noAvailability)
	assert.Equal(t, 0, rig.available(t, "2025-10-15"))
}

func TestReserve_CheckoutDayNotConsumed(t *testing.T) {
	rig := newLedgerRig(t, 2)
	ctx := context.Background()

	err := rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-17"), "airbnb", uuid.New(), "guest")
	assert.NoError(t, err)

	assert.Equal(t, 1, rig.available(t, "2025-10-15"))
	assert.Equal(t, 1, rig.available(t, "2025-10-16"))
	assert.Equal(t, 2, rig.available(t, "2025-10-17"))
}

func TestReserve_AllOrNothingAcrossRange(t *testing.T) {
	rig := newLedgerRig(t, 1)
	ctx := context.Background()

	// Fill the middle night.
	err := rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-16", "2025-10-17"), "airbnb", uuid.New(), "guest")
	assert.NoError(t, err)

	err = rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-18"), "expedia", uuid.New(), "guest")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	// The nights before the conflict must have been rolled back.
	assert.Equal(t, 1, rig.available(t, "2025-10-15"))
	assert.Equal(t, 0, rig.available(t, "2025-10-16"))
	assert.Equal(t, 1, rig.available(t, "2025-10-17"))
}

func TestRelease_Idempotent(t *testing.T) {
	rig := newLedgerRig(t, 4)
	ctx := context.Background()
	bookingID := uuid.New()
	night := stay("2025-11-01", "2025-11-02")

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "airbnb", bookingID, "guest"))
	assert.Equal(t, 3, rig.available(t, "2025-11-01"))

	assert.NoError(t, rig.svc.Release(ctx, rig.propertyID, rig.roomID, night, bookingID))
	assert.Equal(t, 4, rig.available(t, "2025-11-01"))

	assert.NoError(t, rig.svc.Release(ctx, rig.propertyID, rig.roomID, night, bookingID))
	assert.Equal(t, 4, rig.available(t, "2025-11-01"))
}

func TestRebind_MovesTheStay(t *testing.T) {
	rig := newLedgerRig(t, 1)
	ctx := context.Background()
	bookingID := uuid.New()

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-17"), "airbnb", bookingID, "guest"))

	err := rig.svc.Rebind(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-17"), stay("2025-10-16", "2025-10-18"), "airbnb", bookingID, "guest")
	assert.NoError(t, err)

	assert.Equal(t, 1, rig.available(t, "2025-10-15"))
	assert.Equal(t, 0, rig.available(t, "2025-10-16"))
	assert.Equal(t, 0, rig.available(t, "2025-10-17"))
	assert.Equal(t, 1, rig.available(t, "2025-10-18"))
}

func TestRebind_FailureLeavesLedgerUntouched(t *testing.T) {
	rig := newLedgerRig(t, 1)
	ctx := context.Background()
	bookingID := uuid.New()

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-16"), "airbnb", bookingID, "guest"))
	// The target night is fully booked by someone else.
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-10-16", "2025-10-17"), "booking.com", uuid.New(), "other"))

	before, err := rig.repo.GetRange(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-17"))
	assert.NoError(t, err)

	err = rig.svc.Rebind(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-16"), stay("2025-10-16", "2025-10-17"), "airbnb", bookingID, "guest")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	after, err := rig.repo.GetRange(ctx, rig.propertyID, rig.roomID, stay("2025-10-15", "2025-10-17"))
	assert.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBlock_RespectsCapacity(t *testing.T) {
	rig := newLedgerRig(t, 2)
	ctx := context.Background()
	night := stay("2025-12-01", "2025-12-02")

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "airbnb", uuid.New(), "guest"))

	err := rig.svc.Block(ctx, rig.propertyID, rig.roomID, night, 2, "painting")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)
	assert.Equal(t, 1, rig.available(t, "2025-12-01"))

	assert.NoError(t, rig.svc.Block(ctx, rig.propertyID, rig.roomID, night, 1, "painting"))
	assert.Equal(t, 0, rig.available(t, "2025-12-01"))

	assert.NoError(t, rig.svc.Unblock(ctx, rig.propertyID, rig.roomID, night, 1))
	assert.Equal(t, 1, rig.available(t, "2025-12-01"))
}

func TestBlock_RollsBackOnPartialFailure(t *testing.T) {
	rig := newLedgerRig(t, 1)
	ctx := context.Background()

	// Second night already sold out.
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-12-02", "2025-12-03"), "airbnb", uuid.New(), "guest"))

	err := rig.svc.Block(ctx, rig.propertyID, rig.roomID, stay("2025-12-01", "2025-12-03"), 1, "maintenance")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	assert.Equal(t, 1, rig.available(t, "2025-12-01"))
	assert.Equal(t, 0, rig.available(t, "2025-12-02"))
}

func TestSetBlocked_AbsoluteNotAdditive(t *testing.T) {
	rig := newLedgerRig(t, 3)
	ctx := context.Background()
	night := stay("2025-12-05", "2025-12-06")

	assert.NoError(t, rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, night, 2, "calendar sync"))
	assert.Equal(t, 1, rig.available(t, "2025-12-05"))

	// Applying the same level again must not stack.
	assert.NoError(t, rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, night, 2, "calendar sync"))
	assert.Equal(t, 1, rig.available(t, "2025-12-05"))

	assert.NoError(t, rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, night, 0, "calendar sync"))
	assert.Equal(t, 3, rig.available(t, "2025-12-05"))
}

func TestSetBlocked_RespectsCommittedBookings(t *testing.T) {
	rig := newLedgerRig(t, 2)
	ctx := context.Background()
	night := stay("2025-12-05", "2025-12-06")

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "airbnb", uuid.New(), "guest"))

	err := rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, night, 2, "calendar sync")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)
	assert.Equal(t, 1, rig.available(t, "2025-12-05"))

	assert.NoError(t, rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, night, 1, "calendar sync"))
	assert.Equal(t, 0, rig.available(t, "2025-12-05"))
}

func TestSetBlocked_RestoresOnPartialFailure(t *testing.T) {
	rig := newLedgerRig(t, 2)
	ctx := context.Background()

	assert.NoError(t, rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, stay("2025-12-05", "2025-12-06"), 2, "owner stay"))
	// Second night sold out, so the range-wide hold must fail.
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-12-06", "2025-12-07"), "airbnb", uuid.New(), "a"))
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, stay("2025-12-06", "2025-12-07"), "airbnb", uuid.New(), "b"))

	err := rig.svc.SetBlocked(ctx, rig.propertyID, rig.roomID, stay("2025-12-05", "2025-12-07"), 1, "calendar sync")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	// The first night keeps its original two-unit hold, not the failed
	// range's one-unit level.
	assert.Equal(t, 0, rig.available(t, "2025-12-05"))
	assert.Equal(t, 0, rig.available(t, "2025-12-06"))
}

func TestSetRate_UpdatesRange(t *testing.T) {
	rig := newLedgerRig(t, 2)
	ctx := context.Background()

	assert.NoError(t, rig.svc.SetRate(ctx, rig.propertyID, rig.roomID, stay("2025-12-01", "2025-12-03"), 159.0, "EUR"))

	views, err := rig.svc.Availability(ctx, rig.propertyID, rig.roomID, stay("2025-12-01", "2025-12-03"))
	assert.NoError(t, err)
	assert.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, 159.0, v.Rate)
		assert.Equal(t, "EUR", v.Currency)
	}
}

// The shared-inventory scenario: one room type, four units, three channels.
func TestSharedInventoryScenario(t *testing.T) {
	rig := newLedgerRig(t, 4)
	ctx := context.Background()
	night := stay("2025-10-20", "2025-10-21")

	bookingA := uuid.New()
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "airbnb", bookingA, "alice"))
	assert.Equal(t, 3, rig.available(t, "2025-10-20"))

	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "booking.com", uuid.New(), "bob"))
	assert.NoError(t, rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "booking.com", uuid.New(), "carol"))
	assert.Equal(t, 1, rig.available(t, "2025-10-20"))

	assert.NoError(t, rig.svc.Block(ctx, rig.propertyID, rig.roomID, night, 1, "owner stay"))
	err := rig.svc.Reserve(ctx, rig.propertyID, rig.roomID, night, "expedia", uuid.New(), "dave")
	assert.ErrorIs(t, err, domain.ErrNoAvailability)
	assert.Equal(t, 0, rig.available(t, "2025-10-20"))

	assert.NoError(t, rig.svc.Unblock(ctx, rig.propertyID, rig.roomID, night, 1))
	assert.NoError(t, rig.svc.Release(ctx, rig.propertyID, rig.roomID, night, bookingA))
	assert.Equal(t, 2, rig.available(t, "2025-10-20"))
}
