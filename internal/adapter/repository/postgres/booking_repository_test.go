package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/channel_manager/internal/core/domain"
)

func TestMapInsertErr_UniqueViolationIsDuplicate(t *testing.T) {
	raw := &pq.Error{Code: uniqueViolation, Constraint: "ux_bookings_channel_external"}

	assert.ErrorIs(t, mapInsertErr(raw), domain.ErrDuplicateEvent)
	assert.ErrorIs(t, mapInsertErr(fmt.Errorf("exec: %w", raw)), domain.ErrDuplicateEvent)
}

func TestMapInsertErr_OtherErrorsPassThrough(t *testing.T) {
	notNull := &pq.Error{Code: "23502"}
	assert.NotErrorIs(t, mapInsertErr(notNull), domain.ErrDuplicateEvent)

	plain := errors.New("connection reset")
	err := mapInsertErr(plain)
	assert.NotErrorIs(t, err, domain.ErrDuplicateEvent)
	assert.ErrorIs(t, err, plain)
}
