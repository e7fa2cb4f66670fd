package sync

import (
	"context"
	"time"

	"recmirror/internal/domain"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
)

// StatusProjector mirrors in-memory task state into the durable record rows
// and the status cache. Writes are best effort: a failed projection is logged
// and never fails the sync that triggered it.
type StatusProjector struct {
	records domain.RecordStore
	cache   domain.StatusCache
	logger  *zerolog.Logger
}

func NewStatusProjector(records domain.RecordStore, cache domain.StatusCache, logger *zerolog.Logger) *StatusProjector {
	return &StatusProjector{
		records: records,
		cache:   cache,
		logger:  logger,
	}
}

// MarkSyncing projects the start of a task.
func (p *StatusProjector) MarkSyncing(ctx context.Context, recordID int64, startedAt time.Time) {
	p.project(ctx, recordID, models.SyncStatusSyncing, &startedAt, "")
}

// MarkIdle projects a successful finish. Idle doubles as "last sync succeeded".
func (p *StatusProjector) MarkIdle(ctx context.Context, recordID int64) {
	p.project(ctx, recordID, models.SyncStatusIdle, nil, "")
}

// MarkError projects a failed finish with a truncated message.
func (p *StatusProjector) MarkError(ctx context.Context, recordID int64, errMsg string) {
	p.project(ctx, recordID, models.SyncStatusError, nil, errMsg)
}

func (p *StatusProjector) project(ctx context.Context, recordID int64, status string, startedAt *time.Time, errMsg string) {
	if len(errMsg) > models.MaxErrorLength {
		errMsg = errMsg[:models.MaxErrorLength]
	}

	if err := p.records.UpdateRecordSyncStatus(ctx, recordID, status, startedAt, errMsg); err != nil {
		p.logger.Error().Err(err).
			Int64("record_id", recordID).
			Str("status", status).
			Msg("failed to project sync status to store")
	}

	if p.cache == nil {
		return
	}
	snapshot := &models.StatusSnapshot{
		RecordID:      recordID,
		Status:        status,
		SyncStartedAt: startedAt,
		SyncError:     errMsg,
		UpdatedAt:     time.Now(),
	}
	if err := p.cache.SetStatus(ctx, snapshot); err != nil {
		p.logger.Warn().Err(err).
			Int64("record_id", recordID).
			Msg("failed to project sync status to cache")
	}
}

// Reconcile flips records left in syncing state since before the grace period
// to error. Runs once on startup: a crash mid-task otherwise leaves them
// stuck at syncing forever.
func (p *StatusProjector) Reconcile(ctx context.Context, grace time.Duration) {
	cutoff := time.Now().Add(-grace)
	n, err := p.records.ResetStaleSyncing(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to reconcile stale syncing records")
		return
	}
	if n > 0 {
		p.logger.Warn().Int64("count", n).Msg("reset stale syncing records to error")
	}
}
