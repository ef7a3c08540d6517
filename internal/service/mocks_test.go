package service

import (
	"context"
	"time"

	"adspot/internal/database"
	"adspot/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateSlot(ctx context.Context, slot *models.Slot) error {
	return m.Called(ctx, slot).Error(0)
}
func (m *mockStore) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Slot), args.Error(1)
}
func (m *mockStore) UpdateSlotPrice(ctx context.Context, id, price int64) error {
	return m.Called(ctx, id, price).Error(0)
}
func (m *mockStore) GetAvailability(ctx context.Context, placement string, from, to time.Time) ([]models.Availability, error) {
	args := m.Called(ctx, placement, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Availability), args.Error(1)
}
func (m *mockStore) GetSoldForDate(ctx context.Context, placement string, date time.Time, limit int) ([]models.SoldSlot, error) {
	args := m.Called(ctx, placement, date, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SoldSlot), args.Error(1)
}
func (m *mockStore) ReserveApplication(ctx context.Context, app *models.Application, items []models.SlotItem, ttl time.Duration) ([]int64, error) {
	args := m.Called(ctx, app, items, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}
func (m *mockStore) ReleaseApplication(ctx context.Context, applicationID, callerID int64) error {
	return m.Called(ctx, applicationID, callerID).Error(0)
}
func (m *mockStore) ReclaimExpiredLocks(ctx context.Context, now time.Time) (database.ReclaimResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(database.ReclaimResult), args.Error(1)
}
func (m *mockStore) CommitApplication(ctx context.Context, applicationID, approverID int64) ([]models.Banner, error) {
	args := m.Called(ctx, applicationID, approverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Banner), args.Error(1)
}
func (m *mockStore) RejectApplication(ctx context.Context, applicationID, approverID int64) error {
	return m.Called(ctx, applicationID, approverID).Error(0)
}
func (m *mockStore) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}
func (m *mockStore) GetApplicationByIdempotencyKey(ctx context.Context, key string) (*models.Application, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}
func (m *mockStore) GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ApplicationSlot), args.Error(1)
}
func (m *mockStore) GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]*models.Application, error) {
	args := m.Called(ctx, applicantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Application), args.Error(1)
}
func (m *mockStore) GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Application), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, placement string, day time.Time) ([]models.Availability, error) {
	args := m.Called(ctx, placement, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Availability), args.Error(1)
}
func (m *mockCache) Set(ctx context.Context, placement string, day time.Time, entries []models.Availability) error {
	return m.Called(ctx, placement, day, entries).Error(0)
}
func (m *mockCache) Invalidate(ctx context.Context, placement string, days ...time.Time) error {
	return m.Called(ctx, placement, days).Error(0)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

func testPlacements() []models.Placement {
	return []models.Placement{
		{Name: "main_page", Description: "Главная страница"},
		{Name: "catalog", Description: "Каталог"},
	}
}
