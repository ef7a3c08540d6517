package service

import (
	"context"
	"io"
	"testing"
	"time"

	"adspot/internal/database"
	"adspot/internal/events"
	"adspot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCommit(t *testing.T) {
	ctx := context.Background()
	day := futureDay(7)
	logger := zerolog.New(io.Discard)

	t.Run("Success", func(t *testing.T) {
		store := new(mockStore)
		cache := new(mockCache)
		bus := new(mockBus)
		svc := NewSettlementService(store, cache, bus, &logger)

		banners := []models.Banner{
			{ID: 1, ApplicationID: 5, SlotID: 10, Placement: "main_page", Date: day, Position: 1},
			{ID: 2, ApplicationID: 5, SlotID: 11, Placement: "main_page", Date: day, Position: 2},
		}
		app := &models.Application{ID: 5, ApplicantID: 100, Placement: "main_page", Status: models.StatusApproved}

		store.On("CommitApplication", ctx, int64(5), int64(7)).Return(banners, nil).Once()
		store.On("GetApplication", ctx, int64(5)).Return(app, nil).Once()
		bus.On("PublishJSON", events.EventApplicationApproved, mock.Anything).Return(nil).Once()
		cache.On("Invalidate", ctx, "main_page", []time.Time{day}).Return(nil).Once()

		got, err := svc.Commit(ctx, 5, 7)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("InvalidStatePassesThrough", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockBus)
		svc := NewSettlementService(store, nil, bus, &logger)

		store.On("CommitApplication", ctx, int64(5), int64(7)).Return(nil, database.ErrInvalidState).Once()

		_, err := svc.Commit(ctx, 5, 7)
		assert.ErrorIs(t, err, database.ErrInvalidState)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	day := futureDay(7)
	logger := zerolog.New(io.Discard)

	t.Run("Success", func(t *testing.T) {
		store := new(mockStore)
		cache := new(mockCache)
		bus := new(mockBus)
		svc := NewSettlementService(store, cache, bus, &logger)

		app := &models.Application{ID: 5, ApplicantID: 100, Placement: "main_page", Status: models.StatusRejected}
		store.On("GetApplicationSlots", ctx, int64(5)).
			Return([]models.ApplicationSlot{{ApplicationID: 5, SlotID: 10}}, nil).Once()
		store.On("GetSlot", ctx, int64(10)).
			Return(&models.Slot{ID: 10, Placement: "main_page", Date: day}, nil).Once()
		store.On("RejectApplication", ctx, int64(5), int64(7)).Return(nil).Once()
		store.On("GetApplication", ctx, int64(5)).Return(app, nil).Once()
		bus.On("PublishJSON", events.EventApplicationRejected, mock.Anything).Return(nil).Once()
		cache.On("Invalidate", ctx, "main_page", []time.Time{day}).Return(nil).Once()

		require.NoError(t, svc.Reject(ctx, 5, 7))
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("NotPendingPassesThrough", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockBus)
		svc := NewSettlementService(store, nil, bus, &logger)

		store.On("GetApplicationSlots", ctx, int64(5)).Return(nil, database.ErrNotFound).Once()
		store.On("RejectApplication", ctx, int64(5), int64(7)).Return(database.ErrInvalidState).Once()

		err := svc.Reject(ctx, 5, 7)
		assert.ErrorIs(t, err, database.ErrInvalidState)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})
}
