package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/srgjo27/channel_manager/internal/adapter/repository/memory"
	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/ports"
	"github.com/srgjo27/channel_manager/internal/core/ports/mocks"
	"github.com/srgjo27/channel_manager/internal/core/services"
)

type reservationRig struct {
	svc        *services.ReservationService
	ledger     *services.LedgerService
	bookings   *memory.BookingRepository
	propertyID uuid.UUID
	roomID     uuid.UUID
}

func newReservationRig(t *testing.T, capacity int) *reservationRig {
	t.Helper()

	propertyID := uuid.New()
	roomID := uuid.New()

	dir := memory.NewDirectory()
	dir.AddRoom(propertyID, roomID, capacity)

	ledger := services.NewLedgerService(memory.NewLedgerRepository(), dir, nil, 2*time.Second)
	bookings := memory.NewBookingRepository()

	svc := services.NewReservationService(bookings, ledger, nil, nil, []string{"airbnb"}, 2*time.Second)

	return &reservationRig{
		svc:        svc,
		ledger:     ledger,
		bookings:   bookings,
		propertyID: propertyID,
		roomID:     roomID,
	}
}

func (r *reservationRig) createReq(channel, from, to string) services.CreateBookingRequest {
	return services.CreateBookingRequest{
		PropertyID: r.propertyID.String(),
		RoomID:     r.roomID.String(),
		CheckIn:    from,
		CheckOut:   to,
		Channel:    channel,
		Guest:      domain.GuestInfo{Name: "Ana", Adults: 2},
		Pricing:    domain.Pricing{Total: 200, Currency: "USD"},
	}
}

func (r *reservationRig) available(t *testing.T, day string) int {
	t.Helper()

	views, err := r.ledger.Availability(context.Background(), r.propertyID, r.roomID, stay(day, nextDay(day)))
	assert.NoError(t, err)

	return views[0].AvailableUnits
}

func futureDay(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(domain.DateLayout)
}

func TestCreateBooking_AutoConfirmPolicy(t *testing.T) {
	rig := newReservationRig(t, 2)
	ctx := context.Background()

	auto, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(10), futureDay(12)))
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, auto.Status)

	direct, err := rig.svc.CreateBooking(ctx, rig.createReq("direct", futureDay(10), futureDay(12)))
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingPending, direct.Status)
}

func TestCreateBooking_PendingHoldsCapacity(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	pending, err := rig.svc.CreateBooking(ctx, rig.createReq("direct", futureDay(5), futureDay(6)))
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingPending, pending.Status)

	_, err = rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(5), futureDay(6)))
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	// Confirming the survivor is ledger-neutral.
	confirmed, err := rig.svc.Confirm(ctx, pending.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, confirmed.Status)
	assert.Equal(t, 0, rig.available(t, futureDay(5)))
}

func TestCreateBooking_NoAvailabilityNeverPersists(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	first, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(5), futureDay(7)))
	assert.NoError(t, err)
	assert.NotNil(t, first)

	second, err := rig.svc.CreateBooking(ctx, rig.createReq("booking.com", futureDay(6), futureDay(8)))
	assert.ErrorIs(t, err, domain.ErrNoAvailability)
	assert.Nil(t, second)
}

func TestCreateBooking_PersistFailureCompensatesLedger(t *testing.T) {
	propertyID := uuid.New()
	roomID := uuid.New()

	dir := memory.NewDirectory()
	dir.AddRoom(propertyID, roomID, 2)

	ledger := services.NewLedgerService(memory.NewLedgerRepository(), dir, nil, 2*time.Second)

	mockBookings := mocks.NewBookingRepository(t)
	mockBookings.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(errors.New("connection reset"))

	svc := services.NewReservationService(mockBookings, ledger, nil, nil, nil, 2*time.Second)

	req := services.CreateBookingRequest{
		PropertyID: propertyID.String(),
		RoomID:     roomID.String(),
		CheckIn:    futureDay(3),
		CheckOut:   futureDay(5),
		Channel:    "expedia",
	}

	_, err := svc.CreateBooking(context.Background(), req)
	assert.Error(t, err)

	// The reserved nights must have been released again.
	views, err := ledger.Availability(context.Background(), propertyID, roomID, stay(futureDay(3), futureDay(5)))
	assert.NoError(t, err)
	for _, v := range views {
		assert.Equal(t, 2, v.AvailableUnits)
	}
}

func TestCreateBooking_InvalidatesAvailabilityCache(t *testing.T) {
	propertyID := uuid.New()
	roomID := uuid.New()

	dir := memory.NewDirectory()
	dir.AddRoom(propertyID, roomID, 2)

	ledger := services.NewLedgerService(memory.NewLedgerRepository(), dir, nil, 2*time.Second)

	db, mockRedis := redismock.NewClientMock()
	svc := services.NewReservationService(memory.NewBookingRepository(), ledger, nil, db, []string{"airbnb"}, 2*time.Second)

	cacheKey := fmt.Sprintf("availability:%s:%s", propertyID, roomID)
	mockRedis.ExpectDel(cacheKey).SetVal(1)

	req := services.CreateBookingRequest{
		PropertyID: propertyID.String(),
		RoomID:     roomID.String(),
		CheckIn:    futureDay(3),
		CheckOut:   futureDay(4),
		Channel:    "airbnb",
	}

	_, err := svc.CreateBooking(context.Background(), req)
	assert.NoError(t, err)

	if err := mockRedis.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestCancel_ReleasesAndIsIdempotent(t *testing.T) {
	rig := newReservationRig(t, 4)
	ctx := context.Background()
	day := futureDay(7)

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", day, nextDay(day)))
	assert.NoError(t, err)
	assert.Equal(t, 3, rig.available(t, day))

	cancelled, err := rig.svc.Cancel(ctx, booking.ID, "guest request")
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)
	assert.Equal(t, "guest request", cancelled.CancellationReason)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 4, rig.available(t, day))

	// Cancelling again is a success no-op.
	again, err := rig.svc.Cancel(ctx, booking.ID, "retry")
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, again.Status)
	assert.Equal(t, 4, rig.available(t, day))
}

func TestCancel_OthersKeepTheirCommits(t *testing.T) {
	rig := newReservationRig(t, 4)
	ctx := context.Background()
	day := futureDay(7)

	a, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", day, nextDay(day)))
	assert.NoError(t, err)
	_, err = rig.svc.CreateBooking(ctx, rig.createReq("booking.com", day, nextDay(day)))
	assert.NoError(t, err)
	_, err = rig.svc.CreateBooking(ctx, rig.createReq("expedia", day, nextDay(day)))
	assert.NoError(t, err)
	assert.Equal(t, 1, rig.available(t, day))

	_, err = rig.svc.Cancel(ctx, a.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, 2, rig.available(t, day))

	_, err = rig.svc.Cancel(ctx, a.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, 2, rig.available(t, day))
}

func TestCheckInOut_Lifecycle(t *testing.T) {
	rig := newReservationRig(t, 2)
	ctx := context.Background()

	// Stay started yesterday, so the date guard passes.
	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(-1), futureDay(2)))
	assert.NoError(t, err)

	checkedIn, err := rig.svc.CheckIn(ctx, booking.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingCheckedIn, checkedIn.Status)
	assert.NotNil(t, checkedIn.CheckedInAt)

	checkedOut, err := rig.svc.CheckOut(ctx, booking.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingCheckedOut, checkedOut.Status)
	assert.NotNil(t, checkedOut.CheckedOutAt)
}

func TestCheckIn_BeforeArrivalDateRejected(t *testing.T) {
	rig := newReservationRig(t, 2)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(3), futureDay(5)))
	assert.NoError(t, err)

	_, err = rig.svc.CheckIn(ctx, booking.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckOut_FromPendingRejected(t *testing.T) {
	rig := newReservationRig(t, 2)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("direct", futureDay(-1), futureDay(1)))
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingPending, booking.Status)

	_, err = rig.svc.CheckOut(ctx, booking.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// The failed transition performed no mutation.
	got, err := rig.svc.GetBooking(ctx, booking.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
}

func TestCancel_AfterCheckInReleasesRemainingNightsOnly(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(-1), futureDay(2)))
	assert.NoError(t, err)

	_, err = rig.svc.CheckIn(ctx, booking.ID)
	assert.NoError(t, err)

	_, err = rig.svc.Cancel(ctx, booking.ID, "early departure")
	assert.NoError(t, err)

	// Last night still belongs to the stay already consumed.
	assert.Equal(t, 0, rig.available(t, futureDay(-1)))
	assert.Equal(t, 1, rig.available(t, futureDay(0)))
	assert.Equal(t, 1, rig.available(t, futureDay(1)))
}

func TestChangeDates_Success(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(10), futureDay(12)))
	assert.NoError(t, err)

	moved, err := rig.svc.ChangeDates(ctx, booking.ID, futureDay(11), futureDay(13))
	assert.NoError(t, err)
	assert.Equal(t, futureDay(11), moved.Stay.CheckIn.Format(domain.DateLayout))

	assert.Equal(t, 1, rig.available(t, futureDay(10)))
	assert.Equal(t, 0, rig.available(t, futureDay(11)))
	assert.Equal(t, 0, rig.available(t, futureDay(12)))
}

func TestChangeDates_NoAvailabilityLeavesBookingUnchanged(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("airbnb", futureDay(10), futureDay(11)))
	assert.NoError(t, err)

	_, err = rig.svc.CreateBooking(ctx, rig.createReq("booking.com", futureDay(11), futureDay(12)))
	assert.NoError(t, err)

	_, err = rig.svc.ChangeDates(ctx, booking.ID, futureDay(11), futureDay(12))
	assert.ErrorIs(t, err, domain.ErrNoAvailability)

	got, err := rig.svc.GetBooking(ctx, booking.ID)
	assert.NoError(t, err)
	assert.Equal(t, futureDay(10), got.Stay.CheckIn.Format(domain.DateLayout))
	assert.Equal(t, futureDay(11), got.Stay.CheckOut.Format(domain.DateLayout))
	assert.Equal(t, 0, rig.available(t, futureDay(10)))
}

func TestMarkNoShow_ReleasesInventory(t *testing.T) {
	rig := newReservationRig(t, 1)
	ctx := context.Background()

	booking, err := rig.svc.CreateBooking(ctx, rig.createReq("booking.com", futureDay(-2), futureDay(1)))
	assert.NoError(t, err)

	_, err = rig.svc.Confirm(ctx, booking.ID)
	assert.NoError(t, err)

	noShow, err := rig.svc.MarkNoShow(ctx, booking.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookingNoShow, noShow.Status)
	assert.Equal(t, 1, rig.available(t, futureDay(0)))
}

func TestNotifier_ReceivesBookingEvents(t *testing.T) {
	propertyID := uuid.New()
	roomID := uuid.New()

	dir := memory.NewDirectory()
	dir.AddRoom(propertyID, roomID, 2)

	ledger := services.NewLedgerService(memory.NewLedgerRepository(), dir, nil, 2*time.Second)

	mockNotifier := mocks.NewNotifier(t)
	mockNotifier.On("Emit", mock.Anything, mock.MatchedBy(func(n ports.Notification) bool {
		return n.Event == "booking:created" && n.PropertyID == propertyID
	})).Once()

	svc := services.NewReservationService(memory.NewBookingRepository(), ledger, mockNotifier, nil, []string{"airbnb"}, 2*time.Second)

	req := services.CreateBookingRequest{
		PropertyID: propertyID.String(),
		RoomID:     roomID.String(),
		CheckIn:    futureDay(3),
		CheckOut:   futureDay(4),
		Channel:    "airbnb",
	}

	_, err := svc.CreateBooking(context.Background(), req)
	assert.NoError(t, err)
}
