package service

import (
	"context"
	"errors"
	"time"

	"adspot/internal/database"
	"adspot/internal/domain"
	"adspot/internal/events"
	"adspot/internal/metrics"
	"adspot/internal/models"

	"github.com/rs/zerolog"
)

// ReservationService claims slot holds for applicants and releases them
// on cancellation. All state transitions happen inside the store; this
// layer adds validation, idempotent replay, events and cache upkeep.
type ReservationService struct {
	store      domain.Store
	cache      domain.AvailabilityCache
	eventBus   domain.EventPublisher
	placements map[string]models.Placement
	holdTTL    time.Duration
	logger     *zerolog.Logger
}

func NewReservationService(store domain.Store, cache domain.AvailabilityCache, eventBus domain.EventPublisher, placements []models.Placement, holdTTL time.Duration, logger *zerolog.Logger) *ReservationService {
	if holdTTL <= 0 {
		holdTTL = models.DefaultHoldTTL
	}
	byName := make(map[string]models.Placement, len(placements))
	for _, p := range placements {
		byName[p.Name] = p
	}
	return &ReservationService{
		store:      store,
		cache:      cache,
		eventBus:   eventBus,
		placements: byName,
		holdTTL:    holdTTL,
		logger:     logger,
	}
}

func (s *ReservationService) validateInput(input domain.ReserveInput) error {
	if _, ok := s.placements[input.Placement]; !ok {
		return ErrUnknownPlacement
	}
	if len(input.Items) == 0 {
		return ErrNoItems
	}

	today := time.Now().Truncate(24 * time.Hour)
	seen := make(map[models.SlotItem]bool, len(input.Items))
	for _, item := range input.Items {
		key := models.SlotItem{Date: item.Date, Position: item.Position}
		if seen[key] {
			return ErrDuplicateItem
		}
		seen[key] = true

		if item.Date.Before(today) {
			return ErrPastDate
		}
	}
	return nil
}

func (s *ReservationService) Reserve(ctx context.Context, input domain.ReserveInput) (*domain.ReserveResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	// Повтор с тем же ключом возвращает исходную заявку без побочных
	// эффектов.
	if input.IdempotencyKey != "" {
		existing, err := s.store.GetApplicationByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			slotIDs, err := s.applicationSlotIDs(ctx, existing.ID)
			if err != nil {
				return nil, err
			}
			metrics.IncReservation("replayed")
			return &domain.ReserveResult{Application: existing, SlotIDs: slotIDs, Replayed: true}, nil
		}
	}

	app := &models.Application{
		ApplicantID:    input.ApplicantID,
		Placement:      input.Placement,
		Title:          input.Title,
		ImageURL:       input.ImageURL,
		LinkURL:        input.LinkURL,
		IdempotencyKey: input.IdempotencyKey,
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	slotIDs, err := s.store.ReserveApplication(ctx, app, input.Items, ttl)
	if err != nil {
		// Гонка одинаковых ключей: обе проверки выше промахнулись, но
		// победитель уже создал заявку — проигравший получает её же.
		if input.IdempotencyKey != "" && isReserveConflict(err) {
			if replay := s.replayByKey(ctx, input.IdempotencyKey); replay != nil {
				metrics.IncReservation("replayed")
				return replay, nil
			}
		}
		if isReserveConflict(err) {
			metrics.IncReservation("conflict")
		} else {
			metrics.IncReservation("error")
		}
		return nil, err
	}
	metrics.IncReservation("reserved")

	s.publishEvent(events.EventApplicationReserved, app, slotIDs, "applicant", app.ApplicantID)
	s.invalidateDays(ctx, input.Placement, itemDays(input.Items))

	return &domain.ReserveResult{Application: app, SlotIDs: slotIDs}, nil
}

func (s *ReservationService) Release(ctx context.Context, applicationID, callerID int64) error {
	// Слоты заявки читаются до освобождения: после него связи удалены.
	days, _ := s.applicationDays(ctx, applicationID)

	if err := s.store.ReleaseApplication(ctx, applicationID, callerID); err != nil {
		return err
	}

	app, err := s.store.GetApplication(ctx, applicationID)
	if err == nil {
		s.publishEvent(events.EventApplicationCancelled, app, nil, "applicant", callerID)
		s.invalidateDays(ctx, app.Placement, days)
	}

	return nil
}

func (s *ReservationService) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	return s.store.GetApplication(ctx, id)
}

func (s *ReservationService) GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error) {
	return s.store.GetApplicationSlots(ctx, applicationID)
}

func (s *ReservationService) GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]*models.Application, error) {
	return s.store.GetApplicationsByApplicant(ctx, applicantID)
}

func (s *ReservationService) GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error) {
	return s.store.GetApplicationsByDateRange(ctx, start, end)
}

// isReserveConflict reports whether the reservation failed because
// someone else got to the slots or the key first.
func isReserveConflict(err error) bool {
	return errors.Is(err, database.ErrSlotUnavailable) ||
		errors.Is(err, database.ErrSlotRaceLost) ||
		errors.Is(err, database.ErrDuplicateIdempotencyKey)
}

// replayByKey returns the already stored application for an idempotency
// key, or nil when there is none.
func (s *ReservationService) replayByKey(ctx context.Context, key string) *domain.ReserveResult {
	existing, err := s.store.GetApplicationByIdempotencyKey(ctx, key)
	if err != nil {
		return nil
	}
	slotIDs, err := s.applicationSlotIDs(ctx, existing.ID)
	if err != nil {
		return nil
	}
	return &domain.ReserveResult{Application: existing, SlotIDs: slotIDs, Replayed: true}
}

func (s *ReservationService) applicationSlotIDs(ctx context.Context, applicationID int64) ([]int64, error) {
	links, err := s.store.GetApplicationSlots(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.SlotID)
	}
	return ids, nil
}

func (s *ReservationService) applicationDays(ctx context.Context, applicationID int64) ([]time.Time, error) {
	links, err := s.store.GetApplicationSlots(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	days := make([]time.Time, 0, len(links))
	seen := make(map[time.Time]bool, len(links))
	for _, link := range links {
		slot, err := s.store.GetSlot(ctx, link.SlotID)
		if err != nil {
			continue
		}
		if !seen[slot.Date] {
			seen[slot.Date] = true
			days = append(days, slot.Date)
		}
	}
	return days, nil
}

func itemDays(items []models.SlotItem) []time.Time {
	days := make([]time.Time, 0, len(items))
	seen := make(map[time.Time]bool, len(items))
	for _, item := range items {
		if !seen[item.Date] {
			seen[item.Date] = true
			days = append(days, item.Date)
		}
	}
	return days
}

func (s *ReservationService) publishEvent(eventType string, app *models.Application, slotIDs []int64, changedBy string, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewApplicationPayload(app, slotIDs, changedBy, changedByID)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("application_id", app.ID).Msg("publish event error")
	}
}

func (s *ReservationService) invalidateDays(ctx context.Context, placement string, days []time.Time) {
	if s.cache == nil || len(days) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, placement, days...); err != nil {
		s.logger.Error().Err(err).Str("placement", placement).Msg("cache invalidate error")
	}
}
