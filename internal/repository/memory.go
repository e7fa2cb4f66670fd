package repository

import (
	"context"
	"sync"

	"recmirror/internal/models"
)

type MemoryStatusCache struct {
	statuses sync.Map
	bulk     sync.Map
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{}
}

func (r *MemoryStatusCache) SetStatus(ctx context.Context, snapshot *models.StatusSnapshot) error {
	r.statuses.Store(snapshot.RecordID, snapshot)
	return nil
}

func (r *MemoryStatusCache) GetStatus(ctx context.Context, recordID int64) (*models.StatusSnapshot, error) {
	val, ok := r.statuses.Load(recordID)
	if !ok {
		return nil, nil
	}
	return val.(*models.StatusSnapshot), nil
}

func (r *MemoryStatusCache) SetBulkProgress(ctx context.Context, groupID int64, done, total int) error {
	r.bulk.Store(groupID, bulkProgressEntry{Done: done, Total: total})
	return nil
}

func (r *MemoryStatusCache) GetBulkProgress(ctx context.Context, groupID int64) (int, int, error) {
	val, ok := r.bulk.Load(groupID)
	if !ok {
		return 0, 0, nil
	}
	entry := val.(bulkProgressEntry)
	return entry.Done, entry.Total, nil
}

func (r *MemoryStatusCache) ClearBulkProgress(ctx context.Context, groupID int64) error {
	r.bulk.Delete(groupID)
	return nil
}
