package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"recmirror/internal/domain"
	"recmirror/internal/events"
	"recmirror/internal/metrics"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
)

// Options wires the orchestrator to its collaborators. Cache, Bus, Notifier
// and Drive are optional; nil disables the feature.
type Options struct {
	Records  domain.RecordStore
	Groups   domain.GroupStore
	Source   domain.DataSource
	Mirror   domain.MirrorRepository
	Cache    domain.StatusCache
	Bus      domain.EventPublisher
	Notifier domain.Notifier
	Drive    domain.DriveUploader
	Workers  int
	Logger   *zerolog.Logger
}

// Orchestrator owns the active-task registry and the bounded worker pool.
// One instance per process; callers share it through domain.SyncManager.
type Orchestrator struct {
	records  domain.RecordStore
	groups   domain.GroupStore
	source   domain.DataSource
	mirror   domain.MirrorRepository
	cache    domain.StatusCache
	bus      domain.EventPublisher
	notifier domain.Notifier
	drive    domain.DriveUploader

	projector *StatusProjector
	tracker   *BulkTracker
	resolver  *CascadeResolver

	logger *zerolog.Logger

	mu     stdsync.Mutex
	active map[int64]models.SyncTask
	slots  chan struct{}
}

func NewOrchestrator(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = models.DefaultSyncWorkers
	}

	return &Orchestrator{
		records:   opts.Records,
		groups:    opts.Groups,
		source:    opts.Source,
		mirror:    opts.Mirror,
		cache:     opts.Cache,
		bus:       opts.Bus,
		notifier:  opts.Notifier,
		drive:     opts.Drive,
		projector: NewStatusProjector(opts.Records, opts.Cache, opts.Logger),
		tracker:   NewBulkTracker(),
		resolver:  NewCascadeResolver(opts.Records, opts.Logger),
		logger:    opts.Logger,
		active:    make(map[int64]models.SyncTask),
		slots:     make(chan struct{}, workers),
	}
}

// Projector exposes the status projector for startup reconciliation.
func (o *Orchestrator) Projector() *StatusProjector {
	return o.projector
}

// IsSyncing reports whether an active task exists for the record.
func (o *Orchestrator) IsSyncing(recordID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[recordID]
	return ok
}

// StartSync accepts a sync unless one is already active for the record.
// The returned false is a no-op signal, not an error. The task detaches from
// the caller's context so it survives the originating client disconnecting.
func (o *Orchestrator) StartSync(ctx context.Context, task models.SyncTask) bool {
	visited := NewVisitedSet()
	visited.Add(task.RecordID)
	return o.startTask(ctx, task, visited)
}

// startTask is the single atomic check-and-insert path, used by StartSync
// and by cascade propagation so both share the same mutual exclusion.
func (o *Orchestrator) startTask(ctx context.Context, task models.SyncTask, visited *VisitedSet) bool {
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}

	o.mu.Lock()
	if _, ok := o.active[task.RecordID]; ok {
		o.mu.Unlock()
		return false
	}
	o.active[task.RecordID] = task
	n := len(o.active)
	o.mu.Unlock()

	metrics.SetActiveSyncs(n)
	o.projector.MarkSyncing(ctx, task.RecordID, task.StartedAt)
	o.publish(events.EventSyncStarted, events.SyncEventPayload{
		RecordID:  task.RecordID,
		GroupID:   task.GroupID,
		Status:    models.SyncStatusSyncing,
		StartedAt: task.StartedAt,
	})

	go o.run(context.WithoutCancel(ctx), task, visited)
	return true
}

// GetActiveSyncs returns a snapshot copy, never the live registry.
func (o *Orchestrator) GetActiveSyncs() []models.SyncTask {
	o.mu.Lock()
	defer o.mu.Unlock()

	tasks := make([]models.SyncTask, 0, len(o.active))
	for _, task := range o.active {
		tasks = append(tasks, task)
	}
	return tasks
}

func (o *Orchestrator) run(ctx context.Context, task models.SyncTask, visited *VisitedSet) {
	o.slots <- struct{}{}
	defer func() { <-o.slots }()

	var runErr error
	defer func() { o.finish(ctx, task, runErr) }()

	group, err := o.groups.GetGroup(ctx, task.GroupID)
	if err != nil {
		runErr = fmt.Errorf("load group %d: %w", task.GroupID, err)
		return
	}
	record, err := o.records.GetRecord(ctx, task.RecordID)
	if err != nil {
		runErr = fmt.Errorf("load record %d: %w", task.RecordID, err)
		return
	}

	structure, err := o.source.FetchStructure(ctx, group, record.SourceRef)
	if err != nil {
		runErr = fmt.Errorf("fetch structure for %s: %w", record.SourceRef, err)
		return
	}

	if err := o.mirror.EnsureRepo(ctx, group.RepoName); err != nil {
		runErr = fmt.Errorf("ensure repo %s: %w", group.RepoName, err)
		return
	}

	path := fmt.Sprintf("%s/%s-structure.json", group.SourceRef, record.Name)
	message := fmt.Sprintf("[Automated] Update %s structure from %s", record.Name, group.Name)
	if err := o.mirror.WriteFile(ctx, group.RepoName, path, structure.Structure, message); err != nil {
		runErr = fmt.Errorf("write %s: %w", path, err)
		return
	}

	if err := o.records.MarkRecordSynced(ctx, record.ID, path); err != nil {
		o.logger.Error().Err(err).Int64("record_id", record.ID).Msg("failed to mark record synced")
	}

	o.uploadToDrive(ctx, record, structure.Structure)

	dependents := o.resolver.Lookup(ctx, task.GroupID, structure.Dependents)
	o.persistDependents(ctx, record, dependents)

	// A bulk session already syncs every record in the group directly;
	// cascading on top would only duplicate work and contend for the
	// same worker slots.
	if !o.tracker.IsActive(task.GroupID) {
		o.resolver.Resolve(ctx, o, task, dependents, visited)
	}
}

// persistDependents replaces the stored reverse edges with what the catalog
// reported on this fetch.
func (o *Orchestrator) persistDependents(ctx context.Context, record *models.Record, dependents []*models.Record) {
	edges := make([]models.RecordDependency, 0, len(dependents))
	for _, dep := range dependents {
		edges = append(edges, models.RecordDependency{
			SourceRecordID: dep.ID,
			TargetRecordID: record.ID,
			SourceRef:      dep.SourceRef,
			TargetRef:      record.SourceRef,
		})
	}
	if err := o.records.ReplaceDependents(ctx, record.ID, edges); err != nil {
		o.logger.Error().Err(err).Int64("record_id", record.ID).Msg("failed to persist dependents")
	}
}

func (o *Orchestrator) uploadToDrive(ctx context.Context, record *models.Record, content []byte) {
	if o.drive == nil {
		return
	}

	existing := ""
	if record.DriveFileID != nil {
		existing = *record.DriveFileID
	}
	fileID, err := o.drive.UploadStructure(ctx, record.Name+"-structure.json", content, existing)
	if err != nil {
		o.logger.Warn().Err(err).Int64("record_id", record.ID).Msg("drive upload failed")
		return
	}
	if err := o.records.SetRecordDriveFile(ctx, record.ID, fileID); err != nil {
		o.logger.Error().Err(err).Int64("record_id", record.ID).Msg("failed to store drive file id")
	}
}

// finish is the unconditional teardown. It runs exactly once per accepted
// task: registry removal, final status projection, bulk accounting.
func (o *Orchestrator) finish(ctx context.Context, task models.SyncTask, runErr error) {
	if runErr != nil {
		o.logger.Error().Err(runErr).
			Int64("record_id", task.RecordID).
			Int64("group_id", task.GroupID).
			Msg("record sync failed")
		o.projector.MarkError(ctx, task.RecordID, runErr.Error())
		metrics.IncRecordSync("error")
		o.publish(events.EventSyncFailed, events.SyncEventPayload{
			RecordID:   task.RecordID,
			GroupID:    task.GroupID,
			Status:     models.SyncStatusError,
			Error:      runErr.Error(),
			FinishedAt: time.Now(),
		})
		o.notifyError(ctx, task, runErr)
	} else {
		o.projector.MarkIdle(ctx, task.RecordID)
		metrics.IncRecordSync("success")
		o.publish(events.EventSyncCompleted, events.SyncEventPayload{
			RecordID:   task.RecordID,
			GroupID:    task.GroupID,
			Status:     models.SyncStatusIdle,
			FinishedAt: time.Now(),
		})
	}

	o.mu.Lock()
	delete(o.active, task.RecordID)
	n := len(o.active)
	o.mu.Unlock()
	metrics.SetActiveSyncs(n)

	if o.tracker.IsActive(task.GroupID) {
		completed, total, finished := o.tracker.Increment(task.GroupID)
		o.projectBulkProgress(ctx, task.GroupID, completed, total, finished)
	}
}

func (o *Orchestrator) notifyError(ctx context.Context, task models.SyncTask, runErr error) {
	if o.notifier == nil {
		return
	}
	record, err := o.records.GetRecord(ctx, task.RecordID)
	if err != nil {
		return
	}
	o.notifier.NotifySyncError(ctx, record, runErr.Error())
}

// StartBulkSession opens a bulk session for the group. Callers must check
// IsBulkActive first; the tracker does not reject overlapping sessions.
func (o *Orchestrator) StartBulkSession(ctx context.Context, groupID int64, total int) string {
	id := o.tracker.Start(groupID, total)
	metrics.IncBulkSession()
	o.logger.Info().
		Int64("group_id", groupID).
		Int("total", total).
		Str("session_id", id).
		Msg("bulk session started")

	if o.cache != nil {
		if err := o.cache.SetBulkProgress(ctx, groupID, 0, total); err != nil {
			o.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to cache bulk progress")
		}
	}
	o.publish(events.EventBulkStarted, events.BulkEventPayload{
		SessionID: id,
		GroupID:   groupID,
		Total:     total,
	})
	return id
}

// IncrementBulkProgress counts one finished task outside the worker path,
// e.g. when StartSync was refused and the scheduler treats the record as
// already in flight.
func (o *Orchestrator) IncrementBulkProgress(groupID int64) (completed, total int, finished bool) {
	completed, total, finished = o.tracker.Increment(groupID)
	o.projectBulkProgress(context.Background(), groupID, completed, total, finished)
	return completed, total, finished
}

// EndBulkSession force-closes the group's session.
func (o *Orchestrator) EndBulkSession(ctx context.Context, groupID int64) {
	id := o.tracker.SessionID(groupID)
	o.tracker.End(groupID)
	completed, total, _ := o.tracker.Progress(groupID)
	o.clearBulkProgress(ctx, groupID)
	o.publish(events.EventBulkFinished, events.BulkEventPayload{
		SessionID: id,
		GroupID:   groupID,
		Done:      completed,
		Total:     total,
	})
}

func (o *Orchestrator) IsBulkActive(groupID int64) bool {
	return o.tracker.IsActive(groupID)
}

func (o *Orchestrator) BulkProgress(groupID int64) (completed, total int, active bool) {
	return o.tracker.Progress(groupID)
}

func (o *Orchestrator) projectBulkProgress(ctx context.Context, groupID int64, completed, total int, finished bool) {
	if o.cache != nil {
		if err := o.cache.SetBulkProgress(ctx, groupID, completed, total); err != nil {
			o.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to cache bulk progress")
		}
	}
	if finished {
		o.logger.Info().
			Int64("group_id", groupID).
			Int("total", total).
			Msg("bulk session finished")
		o.publish(events.EventBulkFinished, events.BulkEventPayload{
			SessionID: o.tracker.SessionID(groupID),
			GroupID:   groupID,
			Done:      completed,
			Total:     total,
		})
	}
}

func (o *Orchestrator) clearBulkProgress(ctx context.Context, groupID int64) {
	if o.cache == nil {
		return
	}
	if err := o.cache.ClearBulkProgress(ctx, groupID); err != nil {
		o.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to clear bulk progress")
	}
}

func (o *Orchestrator) publish(eventType string, payload interface{}) {
	if o.bus == nil {
		return
	}
	if err := o.bus.PublishJSON(eventType, payload); err != nil {
		o.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
