package repository

import (
	"context"
	"testing"

	"recmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatusCache(t *testing.T) {
	cache := NewMemoryStatusCache()
	ctx := context.Background()

	t.Run("SetAndGetStatus", func(t *testing.T) {
		snapshot := &models.StatusSnapshot{RecordID: 123, Status: models.SyncStatusSyncing}
		err := cache.SetStatus(ctx, snapshot)
		require.NoError(t, err)

		got, err := cache.GetStatus(ctx, 123)
		require.NoError(t, err)
		assert.Equal(t, snapshot, got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := cache.GetStatus(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("BulkProgress", func(t *testing.T) {
		require.NoError(t, cache.SetBulkProgress(ctx, 5, 2, 8))

		done, total, err := cache.GetBulkProgress(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, done)
		assert.Equal(t, 8, total)

		require.NoError(t, cache.ClearBulkProgress(ctx, 5))
		done, total, _ = cache.GetBulkProgress(ctx, 5)
		assert.Zero(t, done)
		assert.Zero(t, total)
	})
}
