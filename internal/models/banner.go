package models

import "time"

// Banner is the durable artifact created when an application is
// committed: one per slot, active for exactly that slot's date at that
// slot's position. Immutable once created.
type Banner struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	SlotID        int64     `json:"slot_id"`
	Placement     string    `json:"placement"`
	Date          time.Time `json:"date"`
	Position      int64     `json:"position"`
	Title         string    `json:"title"`
	ImageURL      string    `json:"image_url"`
	LinkURL       string    `json:"link_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// Placement describes one banner location known to the catalog. The
// catalog only names placements; which dates and positions exist is
// decided by whoever provisions the slot pool.
type Placement struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}
