package models

import "time"

// Application is one reservation attempt over a set of slots. It is
// created in pending state holding its slots locked, and ends in exactly
// one of the terminal states; terminal applications are never recycled.
type Application struct {
	ID             int64      `json:"id"`
	ApplicantID    int64      `json:"applicant_id"`
	Placement      string     `json:"placement"`
	Title          string     `json:"title"`
	ImageURL       string     `json:"image_url"`
	LinkURL        string     `json:"link_url"`
	TotalAmount    int64      `json:"total_amount"`
	Status         string     `json:"status"` // pending, approved, rejected, cancelled, expired
	ApproverID     int64      `json:"approver_id,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ApplicationSlot links an application to one of its slots. PriceSnapshot
// is the slot price at reservation time and never changes afterwards, so
// historical totals stay reproducible even if the listed price moves.
type ApplicationSlot struct {
	ApplicationID int64 `json:"application_id"`
	SlotID        int64 `json:"slot_id"`
	PriceSnapshot int64 `json:"price_snapshot"`
}
