package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"recmirror/internal/database"
	"recmirror/internal/domain"
	"recmirror/internal/metrics"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
)

// VisitedSet is shared across one whole propagation tree, not per branch.
// Once a record is marked visited anywhere in the tree, sibling branches
// must not re-visit it; bidirectional references would otherwise recurse
// forever.
type VisitedSet struct {
	mu   stdsync.Mutex
	seen map[int64]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[int64]struct{})}
}

// Add marks a record visited and reports whether this was the first visit.
func (v *VisitedSet) Add(recordID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[recordID]; ok {
		return false
	}
	v.seen[recordID] = struct{}{}
	return true
}

func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

type taskStarter interface {
	startTask(ctx context.Context, task models.SyncTask, visited *VisitedSet) bool
}

// CascadeResolver schedules syncs for the dependents the catalog reports for
// a record. Dependents are attempted independently; one failed lookup never
// fails the parent sync.
type CascadeResolver struct {
	records domain.RecordStore
	logger  *zerolog.Logger
}

func NewCascadeResolver(records domain.RecordStore, logger *zerolog.Logger) *CascadeResolver {
	return &CascadeResolver{records: records, logger: logger}
}

// Lookup maps dependent refs reported by the catalog to their tracked local
// records. Untracked refs and lookup failures are skipped; excluded records
// never participate in propagation.
func (r *CascadeResolver) Lookup(ctx context.Context, groupID int64, dependents []string) []*models.Record {
	records := make([]*models.Record, 0, len(dependents))
	for _, ref := range dependents {
		record, err := r.records.GetRecordBySourceRef(ctx, groupID, ref)
		if errors.Is(err, database.ErrNotFound) {
			r.logger.Debug().
				Int64("group_id", groupID).
				Str("source_ref", ref).
				Msg("dependent has no local counterpart, skipping")
			continue
		}
		if err != nil {
			r.logger.Error().Err(err).
				Str("source_ref", ref).
				Msg("failed to look up dependent, skipping")
			continue
		}
		if record.IsExcluded {
			continue
		}
		records = append(records, record)
	}
	return records
}

// Resolve submits a task for each looked-up dependent that has not yet been
// seen in this propagation tree.
func (r *CascadeResolver) Resolve(ctx context.Context, starter taskStarter, parent models.SyncTask, dependents []*models.Record, visited *VisitedSet) {
	for _, record := range dependents {
		if !visited.Add(record.ID) {
			continue
		}

		task := models.SyncTask{
			RecordID:  record.ID,
			OwnerID:   parent.OwnerID,
			GroupID:   parent.GroupID,
			StartedAt: time.Now(),
		}
		if starter.startTask(ctx, task, visited) {
			metrics.IncCascadeSync()
			r.logger.Info().
				Int64("record_id", record.ID).
				Int64("parent_id", parent.RecordID).
				Msg("cascade sync scheduled")
		}
	}
}
