package domain

import (
	"context"
	"time"

	"adspot/internal/database"
	"adspot/internal/models"
)

// Store is the durable slot/application storage consumed by the
// services. Implemented by database.DB.
type Store interface {
	CreateSlot(ctx context.Context, slot *models.Slot) error
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	UpdateSlotPrice(ctx context.Context, id, price int64) error
	GetAvailability(ctx context.Context, placement string, from, to time.Time) ([]models.Availability, error)
	GetSoldForDate(ctx context.Context, placement string, date time.Time, limit int) ([]models.SoldSlot, error)

	ReserveApplication(ctx context.Context, app *models.Application, items []models.SlotItem, ttl time.Duration) ([]int64, error)
	ReleaseApplication(ctx context.Context, applicationID, callerID int64) error
	ReclaimExpiredLocks(ctx context.Context, now time.Time) (database.ReclaimResult, error)
	CommitApplication(ctx context.Context, applicationID, approverID int64) ([]models.Banner, error)
	RejectApplication(ctx context.Context, applicationID, approverID int64) error

	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	GetApplicationByIdempotencyKey(ctx context.Context, key string) (*models.Application, error)
	GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error)
	GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]*models.Application, error)
	GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error)
}

// AvailabilityCache caches the per-day browsing view of a placement.
// A miss returns (nil, nil).
type AvailabilityCache interface {
	Get(ctx context.Context, placement string, day time.Time) ([]models.Availability, error)
	Set(ctx context.Context, placement string, day time.Time, entries []models.Availability) error
	Invalidate(ctx context.Context, placement string, days ...time.Time) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ReservationService claims and releases slot holds on behalf of
// applicants.
type ReservationService interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error)
	Release(ctx context.Context, applicationID, callerID int64) error
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error)
	GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]*models.Application, error)
	GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error)
}

// SettlementService turns held reservations into permanent allocations,
// or declines them.
type SettlementService interface {
	Commit(ctx context.Context, applicationID, approverID int64) ([]models.Banner, error)
	Reject(ctx context.Context, applicationID, approverID int64) error
}

// InventoryService is the read/provisioning surface over the slot pool.
type InventoryService interface {
	Availability(ctx context.Context, placement string, from, to time.Time) ([]models.Availability, error)
	SoldForDate(ctx context.Context, placement string, date time.Time, limit int) ([]models.SoldSlot, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	UpdateSlotPrice(ctx context.Context, id, price int64) error
	Placements() []models.Placement
}

// ReserveInput is one reservation request for a set of slots within a
// single placement.
type ReserveInput struct {
	ApplicantID    int64
	Placement      string
	Title          string
	ImageURL       string
	LinkURL        string
	Items          []models.SlotItem
	TTL            time.Duration
	IdempotencyKey string
}

// ReserveResult reports the created (or replayed) application and the
// slot ids it holds.
type ReserveResult struct {
	Application *models.Application
	SlotIDs     []int64
	Replayed    bool
}
