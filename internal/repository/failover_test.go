package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"adspot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

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
	args := m.Called(ctx, placement, day, entries)
	return args.Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, placement string, days ...time.Time) error {
	args := m.Called(ctx, placement, days)
	return args.Error(0)
}

func TestFailoverAvailabilityCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverAvailabilityCache(primary, fallback, &logger)
	ctx := context.Background()

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.Availability{{Date: day, Position: 1, Status: models.SlotAvailable}}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Get", ctx, "main_page", day).Return(entries, nil).Once()

		got, err := cache.Get(ctx, "main_page", day)
		assert.NoError(t, err)
		assert.Equal(t, entries, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Get", ctx, "main_page", day).Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, "main_page", day).Return(entries, nil).Once()

		got, err := cache.Get(ctx, "main_page", day)
		assert.NoError(t, err)
		assert.Equal(t, entries, got)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		primary.On("Get", ctx, "main_page", day).Return(entries, nil).Once()

		got, err := cache.Get(ctx, "main_page", day)
		assert.NoError(t, err)
		assert.Equal(t, entries, got)
		assert.False(t, cache.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		primary.On("Get", ctx, "main_page", day).Return(nil, errors.New("still fail")).Once()
		fallback.On("Get", ctx, "main_page", day).Return(nil, nil).Once()

		_, err := cache.Get(ctx, "main_page", day)
		assert.NoError(t, err)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSuccess", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Set", ctx, "main_page", day, entries).Return(nil).Once()

		assert.NoError(t, cache.Set(ctx, "main_page", day, entries))
		primary.AssertExpectations(t)
	})

	t.Run("SetFailover", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Set", ctx, "main_page", day, entries).Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "main_page", day, entries).Return(nil).Once()

		assert.NoError(t, cache.Set(ctx, "main_page", day, entries))
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetAlreadyDown", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck.Store(time.Now().UnixNano())
		fallback.On("Set", ctx, "main_page", day, entries).Return(nil).Once()

		assert.NoError(t, cache.Set(ctx, "main_page", day, entries))
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateReachesBothSides", func(t *testing.T) {
		cache.isDown.Store(false)
		days := []time.Time{day}
		primary.On("Invalidate", ctx, "main_page", days).Return(nil).Once()
		fallback.On("Invalidate", ctx, "main_page", days).Return(nil).Once()

		assert.NoError(t, cache.Invalidate(ctx, "main_page", day))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidatePrimaryFailureIsReported", func(t *testing.T) {
		cache.isDown.Store(false)
		days := []time.Time{day}
		primary.On("Invalidate", ctx, "main_page", days).Return(errors.New("fail")).Once()
		fallback.On("Invalidate", ctx, "main_page", days).Return(nil).Once()

		err := cache.Invalidate(ctx, "main_page", day)
		assert.Error(t, err)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

// Параллельные запросы трогают isDown и lastCheck одновременно; тест
// предназначен для -race.
func TestFailoverConcurrentAccess(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverAvailabilityCache(primary, fallback, &logger)
	ctx := context.Background()

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.Availability{{Date: day, Position: 1, Status: models.SlotAvailable}}

	primary.On("Get", ctx, "main_page", day).Return(nil, errors.New("down"))
	primary.On("Set", ctx, "main_page", day, entries).Return(errors.New("down"))
	fallback.On("Get", ctx, "main_page", day).Return(entries, nil)
	fallback.On("Set", ctx, "main_page", day, entries).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := cache.Get(ctx, "main_page", day)
				assert.NoError(t, err)
				assert.Equal(t, entries, got)
				assert.NoError(t, cache.Set(ctx, "main_page", day, entries))
			}
		}()
	}
	wg.Wait()

	assert.True(t, cache.isDown.Load())
}
