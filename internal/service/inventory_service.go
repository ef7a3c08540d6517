package service

import (
	"context"
	"time"

	"adspot/internal/domain"
	"adspot/internal/models"

	"github.com/rs/zerolog"
)

// InventoryService is the read and provisioning surface over the slot
// pool. Availability reads go through the per-day cache; writes keep it
// invalidated.
type InventoryService struct {
	store      domain.Store
	cache      domain.AvailabilityCache
	catalog    []models.Placement
	placements map[string]models.Placement
	logger     *zerolog.Logger
}

func NewInventoryService(store domain.Store, cache domain.AvailabilityCache, placements []models.Placement, logger *zerolog.Logger) *InventoryService {
	byName := make(map[string]models.Placement, len(placements))
	for _, p := range placements {
		byName[p.Name] = p
	}
	return &InventoryService{
		store:      store,
		cache:      cache,
		catalog:    placements,
		placements: byName,
		logger:     logger,
	}
}

func (s *InventoryService) Placements() []models.Placement {
	return s.catalog
}

func (s *InventoryService) Availability(ctx context.Context, placement string, from, to time.Time) ([]models.Availability, error) {
	if _, ok := s.placements[placement]; !ok {
		return nil, ErrUnknownPlacement
	}
	if s.cache == nil {
		return s.store.GetAvailability(ctx, placement, from, to)
	}

	// Кэш ведётся по дням, ответ склеивается из дневных срезов.
	var result []models.Availability
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		entries, err := s.cache.Get(ctx, placement, day)
		if err != nil {
			s.logger.Error().Err(err).Str("placement", placement).Msg("availability cache read error")
			entries = nil
		}
		if entries == nil {
			entries, err = s.store.GetAvailability(ctx, placement, day, day)
			if err != nil {
				return nil, err
			}
			if entries == nil {
				entries = []models.Availability{}
			}
			if err := s.cache.Set(ctx, placement, day, entries); err != nil {
				s.logger.Error().Err(err).Str("placement", placement).Msg("availability cache write error")
			}
		}
		result = append(result, entries...)
	}
	return result, nil
}

func (s *InventoryService) SoldForDate(ctx context.Context, placement string, date time.Time, limit int) ([]models.SoldSlot, error) {
	if _, ok := s.placements[placement]; !ok {
		return nil, ErrUnknownPlacement
	}
	if limit <= 0 || limit > models.DefaultSoldLimit {
		limit = models.DefaultSoldLimit
	}
	return s.store.GetSoldForDate(ctx, placement, date, limit)
}

func (s *InventoryService) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if _, ok := s.placements[slot.Placement]; !ok {
		return ErrUnknownPlacement
	}

	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return err
	}

	s.invalidateDay(ctx, slot.Placement, slot.Date)
	return nil
}

func (s *InventoryService) UpdateSlotPrice(ctx context.Context, id, price int64) error {
	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.UpdateSlotPrice(ctx, id, price); err != nil {
		return err
	}

	s.invalidateDay(ctx, slot.Placement, slot.Date)
	return nil
}

func (s *InventoryService) invalidateDay(ctx context.Context, placement string, day time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, placement, day); err != nil {
		s.logger.Error().Err(err).Str("placement", placement).Msg("cache invalidate error")
	}
}
