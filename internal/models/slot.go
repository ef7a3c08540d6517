package models

import "time"

// Slot is one unit of banner inventory: a single placement on a single
// calendar day at a single position. Slots are provisioned by an external
// batch process and are never deleted; only their lease state changes.
type Slot struct {
	ID         int64     `json:"id"`
	Placement  string    `json:"placement"`
	Date       time.Time `json:"date"`
	Position   int64     `json:"position"`
	Price      int64     `json:"price"`
	Status     string    `json:"status"` // available, locked, sold
	LockHolder int64     `json:"lock_holder,omitempty"`
	LockExpiry time.Time `json:"lock_expiry,omitempty"`
	BannerID   int64     `json:"banner_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SlotItem addresses one slot inside a placement by date and position.
type SlotItem struct {
	Date     time.Time `json:"date"`
	Position int64     `json:"position"`
}

// Availability is the read-only browsing view of one slot.
type Availability struct {
	Date     time.Time `json:"date"`
	Position int64     `json:"position"`
	Status   string    `json:"status"`
	Price    int64     `json:"price"`
}

// SoldSlot is the public display view of an allocated slot.
type SoldSlot struct {
	BannerID int64 `json:"banner_id"`
	Position int64 `json:"position"`
}
