package worker

import (
	"context"
	"time"

	"adspot/internal/database"
	"adspot/internal/domain"
	"adspot/internal/events"
	"adspot/internal/metrics"
	"adspot/internal/models"

	"github.com/rs/zerolog"
)

// ReclaimStore is the storage surface the reclaimer needs.
type ReclaimStore interface {
	ReclaimExpiredLocks(ctx context.Context, now time.Time) (database.ReclaimResult, error)
}

// LockExpiryReclaimer periodically returns slots whose hold expired to
// inventory and expires the owning applications. Sweeps are idempotent,
// so a crashed or overlapping run needs no special recovery.
type LockExpiryReclaimer struct {
	store    ReclaimStore
	cache    domain.AvailabilityCache
	eventBus domain.EventPublisher
	interval time.Duration
	logger   zerolog.Logger
}

func NewLockExpiryReclaimer(store ReclaimStore, cache domain.AvailabilityCache, eventBus domain.EventPublisher, interval time.Duration, logger *zerolog.Logger) *LockExpiryReclaimer {
	if interval <= 0 {
		interval = models.DefaultReclaimInterval
	}
	return &LockExpiryReclaimer{
		store:    store,
		cache:    cache,
		eventBus: eventBus,
		interval: interval,
		logger:   logger.With().Str("component", "reclaimer").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *LockExpiryReclaimer) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("reclaimer started")
	defer r.logger.Info().Msg("reclaimer stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx, time.Now()); err != nil {
				r.logger.Error().Err(err).Msg("reclaim sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep at the given instant.
func (r *LockExpiryReclaimer) RunOnce(ctx context.Context, now time.Time) error {
	res, err := r.store.ReclaimExpiredLocks(ctx, now)
	if err != nil {
		return err
	}
	if len(res.Slots) == 0 {
		return nil
	}

	r.logger.Info().
		Int("slots", len(res.Slots)).
		Int("applications", len(res.ExpiredApplications)).
		Msg("expired holds reclaimed")
	metrics.AddReclaimed(len(res.Slots))

	r.invalidate(ctx, res.Slots)
	r.publish(res)

	return nil
}

func (r *LockExpiryReclaimer) invalidate(ctx context.Context, slots []database.ReclaimedSlot) {
	if r.cache == nil {
		return
	}

	// Группируем дни по площадкам, чтобы сбросить кэш одним вызовом.
	byPlacement := make(map[string][]time.Time)
	seen := make(map[string]map[time.Time]bool)
	for _, slot := range slots {
		if seen[slot.Placement] == nil {
			seen[slot.Placement] = make(map[time.Time]bool)
		}
		if !seen[slot.Placement][slot.Date] {
			seen[slot.Placement][slot.Date] = true
			byPlacement[slot.Placement] = append(byPlacement[slot.Placement], slot.Date)
		}
	}

	for placement, days := range byPlacement {
		if err := r.cache.Invalidate(ctx, placement, days...); err != nil {
			r.logger.Error().Err(err).Str("placement", placement).Msg("cache invalidate error")
		}
	}
}

func (r *LockExpiryReclaimer) publish(res database.ReclaimResult) {
	if r.eventBus == nil {
		return
	}

	slotIDs := make([]int64, 0, len(res.Slots))
	for _, slot := range res.Slots {
		slotIDs = append(slotIDs, slot.SlotID)
	}

	payload := events.ReclaimEventPayload{
		SlotIDs:             slotIDs,
		ExpiredApplications: res.ExpiredApplications,
	}
	if err := r.eventBus.PublishJSON(events.EventSlotsReclaimed, payload); err != nil {
		r.logger.Error().Err(err).Msg("publish reclaim event error")
	}

	for _, appID := range res.ExpiredApplications {
		expired := events.ApplicationEventPayload{
			ApplicationID: appID,
			Status:        models.StatusExpired,
			ChangedBy:     "reclaimer",
		}
		if err := r.eventBus.PublishJSON(events.EventApplicationExpired, expired); err != nil {
			r.logger.Error().Err(err).Int64("application_id", appID).Msg("publish expire event error")
		}
	}
}
