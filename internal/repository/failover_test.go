package repository

import (
	"context"
	"errors"
	"io"
	"testing"

	"recmirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) SetStatus(ctx context.Context, snapshot *models.StatusSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockCache) GetStatus(ctx context.Context, recordID int64) (*models.StatusSnapshot, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatusSnapshot), args.Error(1)
}

func (m *mockCache) SetBulkProgress(ctx context.Context, groupID int64, done, total int) error {
	args := m.Called(ctx, groupID, done, total)
	return args.Error(0)
}

func (m *mockCache) GetBulkProgress(ctx context.Context, groupID int64) (int, int, error) {
	args := m.Called(ctx, groupID)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockCache) ClearBulkProgress(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func TestFailoverStatusCache(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary := new(mockCache)
		fallback := new(mockCache)
		cache := NewFailoverStatusCache(primary, fallback, &logger)

		snapshot := &models.StatusSnapshot{RecordID: 1, Status: models.SyncStatusIdle}
		primary.On("GetStatus", ctx, int64(1)).Return(snapshot, nil).Once()

		got, err := cache.GetStatus(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary := new(mockCache)
		fallback := new(mockCache)
		cache := NewFailoverStatusCache(primary, fallback, &logger)

		snapshot := &models.StatusSnapshot{RecordID: 2, Status: models.SyncStatusError}
		primary.On("GetStatus", ctx, int64(2)).Return(nil, errors.New("fail")).Once()
		fallback.On("GetStatus", ctx, int64(2)).Return(snapshot, nil).Once()

		got, err := cache.GetStatus(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStatusSkipsPrimaryWhenDown", func(t *testing.T) {
		primary := new(mockCache)
		fallback := new(mockCache)
		cache := NewFailoverStatusCache(primary, fallback, &logger)
		cache.isDown.Store(true)

		snapshot := &models.StatusSnapshot{RecordID: 3, Status: models.SyncStatusSyncing}
		fallback.On("SetStatus", ctx, snapshot).Return(nil).Once()

		err := cache.SetStatus(ctx, snapshot)
		assert.NoError(t, err)
		primary.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything)
		fallback.AssertExpectations(t)
	})

	t.Run("BulkProgressFailover", func(t *testing.T) {
		primary := new(mockCache)
		fallback := new(mockCache)
		cache := NewFailoverStatusCache(primary, fallback, &logger)

		primary.On("SetBulkProgress", ctx, int64(9), 1, 4).Return(errors.New("fail")).Once()
		fallback.On("SetBulkProgress", ctx, int64(9), 1, 4).Return(nil).Once()

		err := cache.SetBulkProgress(ctx, 9, 1, 4)
		assert.NoError(t, err)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
