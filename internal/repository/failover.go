package repository

import (
	"context"
	"sync/atomic"
	"time"

	"adspot/internal/domain"
	"adspot/internal/metrics"
	"adspot/internal/models"

	"github.com/rs/zerolog"
)

// FailoverAvailabilityCache serves from the primary (redis) cache while
// it is healthy and switches to the in-memory fallback when it errors.
// The primary is retried after a one minute cooldown.
type FailoverAvailabilityCache struct {
	primary  domain.AvailabilityCache
	fallback domain.AvailabilityCache
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// unix nanos of the last failed primary call; read from concurrent
	// request goroutines.
	lastCheck atomic.Int64
}

func NewFailoverAvailabilityCache(primary, fallback domain.AvailabilityCache, logger *zerolog.Logger) *FailoverAvailabilityCache {
	return &FailoverAvailabilityCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverAvailabilityCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary availability cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverAvailabilityCache) Get(ctx context.Context, placement string, day time.Time) ([]models.Availability, error) {
	if !r.isDown.Load() {
		entries, err := r.primary.Get(ctx, placement, day)
		if err == nil {
			return entries, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Now().UnixNano()-r.lastCheck.Load() > int64(time.Minute) {
		entries, err := r.primary.Get(ctx, placement, day)
		if err == nil {
			r.isDown.Store(false)
			return entries, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	metrics.IncCacheFallback()
	return r.fallback.Get(ctx, placement, day)
}

func (r *FailoverAvailabilityCache) Set(ctx context.Context, placement string, day time.Time, entries []models.Availability) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, placement, day, entries)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Set(ctx, placement, day, entries)
}

func (r *FailoverAvailabilityCache) Invalidate(ctx context.Context, placement string, days ...time.Time) error {
	// Invalidation must reach both sides; a stale fallback entry would
	// resurface the moment the primary goes down.
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.Invalidate(ctx, placement, days...)
		if primaryErr != nil {
			r.markDown(primaryErr)
		}
	}

	if err := r.fallback.Invalidate(ctx, placement, days...); err != nil {
		return err
	}
	return primaryErr
}
