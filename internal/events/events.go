package events

import (
	"encoding/json"
	"sync"
	"time"

	"adspot/internal/models"
)

const (
	EventApplicationReserved  = "application_reserved"
	EventApplicationApproved  = "application_approved"
	EventApplicationRejected  = "application_rejected"
	EventApplicationCancelled = "application_cancelled"
	EventApplicationExpired   = "application_expired"
	EventSlotsReclaimed       = "slots_reclaimed"
)

// ApplicationEventPayload is the minimal application snapshot handed to
// event consumers; notification rendering happens outside this service.
type ApplicationEventPayload struct {
	ApplicationID int64   `json:"application_id"`
	ApplicantID   int64   `json:"applicant_id"`
	Placement     string  `json:"placement"`
	Status        string  `json:"status"`
	TotalAmount   int64   `json:"total_amount"`
	SlotIDs       []int64 `json:"slot_ids,omitempty"`
	ChangedBy     string  `json:"changed_by,omitempty"`
	ChangedByID   int64   `json:"changed_by_id,omitempty"`
}

// ReclaimEventPayload summarizes one reclaim sweep.
type ReclaimEventPayload struct {
	SlotIDs             []int64 `json:"slot_ids"`
	ExpiredApplications []int64 `json:"expired_applications,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	catchAll    []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catchAll = append(b.catchAll, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.catchAll...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewApplicationPayload builds the standard payload for application
// lifecycle events.
func NewApplicationPayload(app *models.Application, slotIDs []int64, changedBy string, changedByID int64) ApplicationEventPayload {
	return ApplicationEventPayload{
		ApplicationID: app.ID,
		ApplicantID:   app.ApplicantID,
		Placement:     app.Placement,
		Status:        app.Status,
		TotalAmount:   app.TotalAmount,
		SlotIDs:       slotIDs,
		ChangedBy:     changedBy,
		ChangedByID:   changedByID,
	}
}
