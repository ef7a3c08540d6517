package database

import (
	"errors"
	"fmt"
	"strings"

	"adspot/internal/models"
)

var (
	// ErrNotFound means the application or slot id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrSlotUnavailable means at least one requested (date, position)
	// has no available slot row.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrSlotRaceLost means a guarded lock affected fewer rows than
	// requested: a concurrent reservation won between read and write.
	ErrSlotRaceLost = errors.New("slot race lost")

	// ErrForbidden means the caller does not own the application.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the operation precondition does not hold,
	// e.g. committing an application that is not pending or whose slots
	// are no longer locked.
	ErrInvalidState = errors.New("invalid state")

	// ErrInconsistentLockState means a release touched fewer slots than
	// the application links: a concurrent reclaim slipped in, or a bug.
	ErrInconsistentLockState = errors.New("inconsistent lock state")

	// ErrDuplicateIdempotencyKey means another reservation with the same
	// idempotency key already exists; the caller should fetch and return
	// that application instead.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// UnavailableSlotsError reports which requested items had no available
// slot, so the caller can retry with different dates or positions.
type UnavailableSlotsError struct {
	Placement string
	Items     []models.SlotItem
}

func (e *UnavailableSlotsError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s/%d", item.Date.Format(models.DateLayout), item.Position))
	}
	return fmt.Sprintf("slot unavailable: %s [%s]", e.Placement, strings.Join(parts, ", "))
}

func (e *UnavailableSlotsError) Unwrap() error {
	return ErrSlotUnavailable
}
