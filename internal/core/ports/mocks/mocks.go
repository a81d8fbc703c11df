// Package mocks contains testify mocks for the core ports, in the shape
// mockery generates them.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/ports"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type BookingRepository struct {
	mock.Mock
}

func NewBookingRepository(t testingT) *BookingRepository {
	m := &BookingRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *BookingRepository) GetByExternalID(ctx context.Context, channel, externalBookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, channel, externalBookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *BookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *BookingRepository) GetNoShowCandidates(ctx context.Context, checkInBefore time.Time) ([]*domain.Booking, error) {
	args := m.Called(ctx, checkInBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.Booking), args.Error(1)
}

type RoomDirectory struct {
	mock.Mock
}

func NewRoomDirectory(t testingT) *RoomDirectory {
	m := &RoomDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *RoomDirectory) RoomCapacity(ctx context.Context, propertyID, roomID uuid.UUID) (int, error) {
	args := m.Called(ctx, propertyID, roomID)
	return args.Int(0), args.Error(1)
}

func (m *RoomDirectory) ResolveRoom(ctx context.Context, channel, propertyID, externalRoomCode string) (uuid.UUID, uuid.UUID, error) {
	args := m.Called(ctx, channel, propertyID, externalRoomCode)
	return args.Get(0).(uuid.UUID), args.Get(1).(uuid.UUID), args.Error(2)
}

func (m *RoomDirectory) DefaultRoom(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, propertyID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type Notifier struct {
	mock.Mock
}

func NewNotifier(t testingT) *Notifier {
	m := &Notifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Notifier) Emit(ctx context.Context, n ports.Notification) {
	m.Called(ctx, n)
}

type InventoryLedger struct {
	mock.Mock
}

func NewInventoryLedger(t testingT) *InventoryLedger {
	m := &InventoryLedger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *InventoryLedger) Reserve(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error {
	return m.Called(ctx, propertyID, roomID, stay, channel, bookingID, guestRef).Error(0)
}

func (m *InventoryLedger) Release(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, bookingID uuid.UUID) error {
	return m.Called(ctx, propertyID, roomID, stay, bookingID).Error(0)
}

func (m *InventoryLedger) Rebind(ctx context.Context, propertyID, roomID uuid.UUID, oldStay, newStay domain.Stay, channel string, bookingID uuid.UUID, guestRef string) error {
	return m.Called(ctx, propertyID, roomID, oldStay, newStay, channel, bookingID, guestRef).Error(0)
}

func (m *InventoryLedger) Block(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error {
	return m.Called(ctx, propertyID, roomID, stay, units, reason).Error(0)
}

func (m *InventoryLedger) Unblock(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int) error {
	return m.Called(ctx, propertyID, roomID, stay, units).Error(0)
}

func (m *InventoryLedger) SetBlocked(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, units int, reason string) error {
	return m.Called(ctx, propertyID, roomID, stay, units, reason).Error(0)
}

func (m *InventoryLedger) SetRate(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay, rate float64, currency string) error {
	return m.Called(ctx, propertyID, roomID, stay, rate, currency).Error(0)
}
