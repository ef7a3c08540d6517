package models

import "time"

// Slot lease states.
const (
	SlotAvailable = "available"
	SlotLocked    = "locked"
	SlotSold      = "sold"
)

// Application states.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

const (
	// DefaultHoldTTL срок удержания брони до подтверждения оплаты
	DefaultHoldTTL = 2880 * time.Minute

	// DefaultReclaimInterval период обхода просроченных блокировок
	DefaultReclaimInterval = time.Minute

	// DefaultAvailabilityCacheTTL время жизни кэша доступности
	DefaultAvailabilityCacheTTL = 30 * time.Second

	// DefaultSoldLimit максимум баннеров в публичной выдаче на дату
	DefaultSoldLimit = 20

	// OutboxQueueSize размер очереди исходящих событий
	OutboxQueueSize = 1000
)

// DateLayout is the canonical calendar-day format for slot dates.
const DateLayout = "2006-01-02"
