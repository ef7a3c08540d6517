package service

import (
	"context"
	"time"

	"adspot/internal/domain"
	"adspot/internal/events"
	"adspot/internal/metrics"
	"adspot/internal/models"

	"github.com/rs/zerolog"
)

// SettlementService finalizes pending applications: approval turns the
// held slots into permanent banner allocations, rejection returns them
// to inventory.
type SettlementService struct {
	store    domain.Store
	cache    domain.AvailabilityCache
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewSettlementService(store domain.Store, cache domain.AvailabilityCache, eventBus domain.EventPublisher, logger *zerolog.Logger) *SettlementService {
	return &SettlementService{
		store:    store,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *SettlementService) Commit(ctx context.Context, applicationID, approverID int64) ([]models.Banner, error) {
	banners, err := s.store.CommitApplication(ctx, applicationID, approverID)
	if err != nil {
		metrics.IncSettlement("error")
		return nil, err
	}
	metrics.IncSettlement("approved")

	app, getErr := s.store.GetApplication(ctx, applicationID)
	if getErr == nil {
		slotIDs := make([]int64, 0, len(banners))
		for _, b := range banners {
			slotIDs = append(slotIDs, b.SlotID)
		}
		s.publishEvent(events.EventApplicationApproved, app, slotIDs, "approver", approverID)
	}

	s.invalidateBannerDays(ctx, banners)

	return banners, nil
}

func (s *SettlementService) Reject(ctx context.Context, applicationID, approverID int64) error {
	// Дни слотов читаются до отклонения, пока связи ещё на месте.
	days, placement := s.applicationDays(ctx, applicationID)

	if err := s.store.RejectApplication(ctx, applicationID, approverID); err != nil {
		metrics.IncSettlement("error")
		return err
	}
	metrics.IncSettlement("rejected")

	app, err := s.store.GetApplication(ctx, applicationID)
	if err == nil {
		s.publishEvent(events.EventApplicationRejected, app, nil, "approver", approverID)
	}

	s.invalidateDays(ctx, placement, days)

	return nil
}

func (s *SettlementService) applicationDays(ctx context.Context, applicationID int64) ([]time.Time, string) {
	links, err := s.store.GetApplicationSlots(ctx, applicationID)
	if err != nil {
		return nil, ""
	}

	var placement string
	days := make([]time.Time, 0, len(links))
	seen := make(map[time.Time]bool, len(links))
	for _, link := range links {
		slot, err := s.store.GetSlot(ctx, link.SlotID)
		if err != nil {
			continue
		}
		placement = slot.Placement
		if !seen[slot.Date] {
			seen[slot.Date] = true
			days = append(days, slot.Date)
		}
	}
	return days, placement
}

func (s *SettlementService) invalidateBannerDays(ctx context.Context, banners []models.Banner) {
	if len(banners) == 0 {
		return
	}

	days := make([]time.Time, 0, len(banners))
	seen := make(map[time.Time]bool, len(banners))
	for _, b := range banners {
		if !seen[b.Date] {
			seen[b.Date] = true
			days = append(days, b.Date)
		}
	}
	s.invalidateDays(ctx, banners[0].Placement, days)
}

func (s *SettlementService) invalidateDays(ctx context.Context, placement string, days []time.Time) {
	if s.cache == nil || placement == "" || len(days) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, placement, days...); err != nil {
		s.logger.Error().Err(err).Str("placement", placement).Msg("cache invalidate error")
	}
}

func (s *SettlementService) publishEvent(eventType string, app *models.Application, slotIDs []int64, changedBy string, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewApplicationPayload(app, slotIDs, changedBy, changedByID)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("application_id", app.ID).Msg("publish event error")
	}
}
