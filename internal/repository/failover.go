package repository

import (
	"context"
	"sync/atomic"
	"time"

	"recmirror/internal/domain"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
)

type FailoverStatusCache struct {
	primary   domain.StatusCache
	fallback  domain.StatusCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverStatusCache(primary, fallback domain.StatusCache, logger *zerolog.Logger) *FailoverStatusCache {
	return &FailoverStatusCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStatusCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary status cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverStatusCache) SetStatus(ctx context.Context, snapshot *models.StatusSnapshot) error {
	if !r.isDown.Load() {
		err := r.primary.SetStatus(ctx, snapshot)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetStatus(ctx, snapshot)
}

func (r *FailoverStatusCache) GetStatus(ctx context.Context, recordID int64) (*models.StatusSnapshot, error) {
	if !r.isDown.Load() {
		snapshot, err := r.primary.GetStatus(ctx, recordID)
		if err == nil {
			return snapshot, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		snapshot, err := r.primary.GetStatus(ctx, recordID)
		if err == nil {
			r.isDown.Store(false)
			return snapshot, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetStatus(ctx, recordID)
}

func (r *FailoverStatusCache) SetBulkProgress(ctx context.Context, groupID int64, done, total int) error {
	if !r.isDown.Load() {
		err := r.primary.SetBulkProgress(ctx, groupID, done, total)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetBulkProgress(ctx, groupID, done, total)
}

func (r *FailoverStatusCache) GetBulkProgress(ctx context.Context, groupID int64) (int, int, error) {
	if !r.isDown.Load() {
		done, total, err := r.primary.GetBulkProgress(ctx, groupID)
		if err == nil {
			return done, total, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetBulkProgress(ctx, groupID)
}

func (r *FailoverStatusCache) ClearBulkProgress(ctx context.Context, groupID int64) error {
	if !r.isDown.Load() {
		err := r.primary.ClearBulkProgress(ctx, groupID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearBulkProgress(ctx, groupID)
}
