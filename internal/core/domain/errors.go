package domain

import "errors"

var (
	// ErrNoAvailability means the requested dates would exceed physical capacity.
	// Expected under contention, surfaced to the guest, never a bug.
	ErrNoAvailability = errors.New("no rooms available for these dates")

	// ErrInvalidTransition means a booking status change violates the lifecycle.
	ErrInvalidTransition = errors.New("invalid booking status transition")

	// ErrNotFound means a referenced booking, property or room does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusy means a per-key lock could not be acquired within the bounded
	// wait. Retryable.
	ErrBusy = errors.New("resource busy, retry later")

	// ErrDuplicateEvent means a webhook event was already processed. Treated
	// as success by callers.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrMappingAmbiguous means an external room code could not be resolved.
	// Callers fall back to the property default room.
	ErrMappingAmbiguous = errors.New("ambiguous property/room mapping")
)
