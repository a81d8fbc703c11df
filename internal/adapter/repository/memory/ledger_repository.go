// Package memory provides in-memory implementations of the core ports,
// used by tests and by the CM_DB_DRIVER=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

type LedgerRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.AvailabilityRecord
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{records: make(map[string]*domain.AvailabilityRecord)}
}

func recordKey(propertyID, roomID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", propertyID, roomID, date.Format(domain.DateLayout))
}

func copyRecord(r *domain.AvailabilityRecord) *domain.AvailabilityRecord {
	cp := *r
	cp.Committed = make([]domain.CommittedEntry, len(r.Committed))
	copy(cp.Committed, r.Committed)

	return &cp
}

func (s *LedgerRepository) Get(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time) (*domain.AvailabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(propertyID, roomID, date)]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return copyRecord(rec), nil
}

func (s *LedgerRepository) GetOrCreate(ctx context.Context, propertyID, roomID uuid.UUID, date time.Time, totalUnits int) (*domain.AvailabilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(propertyID, roomID, date)
	if rec, ok := s.records[key]; ok {
		return copyRecord(rec), nil
	}

	rec := &domain.AvailabilityRecord{
		PropertyID: propertyID,
		RoomID:     roomID,
		Date:       date,
		TotalUnits: totalUnits,
		Version:    1,
	}
	s.records[key] = rec

	return copyRecord(rec), nil
}

// Update is a compare-and-swap on Version, mirroring the postgres adapter's
// WHERE version = $n guard.
func (s *LedgerRepository) Update(ctx context.Context, record *domain.AvailabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.PropertyID, record.RoomID, record.Date)
	current, ok := s.records[key]
	if !ok {
		return domain.ErrNotFound
	}

	if current.Version != record.Version {
		return domain.ErrBusy
	}

	next := copyRecord(record)
	next.Version++
	s.records[key] = next
	record.Version = next.Version

	return nil
}

func (s *LedgerRepository) GetRange(ctx context.Context, propertyID, roomID uuid.UUID, stay domain.Stay) ([]*domain.AvailabilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AvailabilityRecord
	for _, night := range stay.Nights() {
		if rec, ok := s.records[recordKey(propertyID, roomID, night)]; ok {
			out = append(out, copyRecord(rec))
		}
	}

	return out, nil
}
