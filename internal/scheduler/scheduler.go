package scheduler

import (
	"context"
	"fmt"
	"time"

	"recmirror/internal/domain"
	"recmirror/internal/events"
	"recmirror/internal/metrics"
	"recmirror/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options wires the scheduler to its collaborators. Docs, Bus and Notifier
// are optional.
type Options struct {
	Jobs     domain.CronJobStore
	Records  domain.RecordStore
	Groups   domain.GroupStore
	Manager  domain.SyncManager
	Docs     domain.DocSetRunner
	Bus      domain.EventPublisher
	Notifier domain.Notifier
	Logger   *zerolog.Logger

	PollInterval     time.Duration
	ProgressInterval time.Duration
	WaitCeiling      time.Duration
}

// Scheduler polls for due jobs, dispatches them through the orchestrator and
// supervises bulk completion with a bounded wait.
type Scheduler struct {
	jobs     domain.CronJobStore
	records  domain.RecordStore
	groups   domain.GroupStore
	manager  domain.SyncManager
	docs     domain.DocSetRunner
	bus      domain.EventPublisher
	notifier domain.Notifier
	logger   *zerolog.Logger

	pollInterval     time.Duration
	progressInterval time.Duration
	waitCeiling      time.Duration

	now func() time.Time
}

func New(opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}
	if opts.WaitCeiling <= 0 {
		opts.WaitCeiling = time.Hour
	}

	return &Scheduler{
		jobs:             opts.Jobs,
		records:          opts.Records,
		groups:           opts.Groups,
		manager:          opts.Manager,
		docs:             opts.Docs,
		bus:              opts.Bus,
		notifier:         opts.Notifier,
		logger:           opts.Logger,
		pollInterval:     opts.PollInterval,
		progressInterval: opts.ProgressInterval,
		waitCeiling:      opts.WaitCeiling,
		now:              time.Now,
	}
}

// Run polls until the context is canceled. A failed iteration is logged and
// the loop keeps going; nothing here is fatal to the process.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("scheduler started")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduler iteration panicked")
		}
	}()

	due, err := s.jobs.ListDueJobs(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due jobs")
		return
	}

	// Due jobs run sequentially, so no two executions of the same job can
	// ever mutate its tracking fields concurrently.
	for i := range due {
		if ctx.Err() != nil {
			return
		}
		s.executeJob(ctx, &due[i])
	}
}

// RunNow executes a job immediately through the same dispatch path the
// polling loop uses. Blocks until the run finishes or times out.
func (s *Scheduler) RunNow(ctx context.Context, jobID int64) (string, error) {
	job, err := s.jobs.GetCronJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job %d: %w", jobID, err)
	}
	return s.executeJob(ctx, job), nil
}

func (s *Scheduler) executeJob(ctx context.Context, job *models.CronJob) string {
	startedAt := s.now()
	runID := uuid.NewString()

	s.logger.Info().
		Int64("job_id", job.ID).
		Str("name", job.Name).
		Str("run_id", runID).
		Str("sync_kind", job.SyncKind).
		Msg("cron job starting")

	if err := s.jobs.MarkJobRunning(ctx, job.ID, startedAt); err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("failed to mark job running")
	}

	run := &models.JobRun{JobID: job.ID, RunID: runID, StartedAt: startedAt}
	if err := s.jobs.CreateJobRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("failed to create job run")
	}

	var status, errMsg string
	var total, failed int
	switch job.SyncKind {
	case models.SyncKindRecordGroup:
		status, errMsg, total, failed = s.runGroupSync(ctx, job)
	case models.SyncKindDocSet:
		status, errMsg = s.runDocSet(ctx, job)
	default:
		status = models.RunStatusError
		errMsg = fmt.Sprintf("unknown sync kind %q", job.SyncKind)
	}

	next := NextRun(job, s.now())
	if err := s.jobs.FinishJob(ctx, job.ID, startedAt, status, errMsg, &next); err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("failed to persist job outcome")
	}
	if run.ID != 0 {
		if err := s.jobs.FinishJobRun(ctx, run.ID, status, errMsg, total, failed); err != nil {
			s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("failed to persist run outcome")
		}
	}

	metrics.IncCronRun(status)
	s.publish(events.EventCronRun, events.CronEventPayload{
		JobID:  job.ID,
		RunID:  runID,
		Status: status,
		Error:  errMsg,
	})
	if s.notifier != nil && status != models.RunStatusSuccess && status != models.RunStatusSkipped {
		s.notifier.NotifyJobFinished(ctx, job, status)
	}

	s.logger.Info().
		Int64("job_id", job.ID).
		Str("run_id", runID).
		Str("status", status).
		Time("next_run", next).
		Msg("cron job finished")
	return status
}

func (s *Scheduler) runGroupSync(ctx context.Context, job *models.CronJob) (status, errMsg string, total, failed int) {
	if job.GroupID == nil {
		return models.RunStatusError, "job has no group", 0, 0
	}
	groupID := *job.GroupID

	// An active session means a previous run (or a user action) is still
	// syncing this group; starting a second one would duplicate every task.
	if s.manager.IsBulkActive(groupID) {
		s.logger.Warn().
			Int64("job_id", job.ID).
			Int64("group_id", groupID).
			Msg("bulk session already active, skipping run")
		return models.RunStatusSkipped, "", 0, 0
	}

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.RunStatusError, fmt.Sprintf("load group %d: %v", groupID, err), 0, 0
	}
	records, err := s.records.ListGroupRecords(ctx, groupID, false)
	if err != nil {
		return models.RunStatusError, fmt.Sprintf("list records: %v", err), 0, 0
	}
	if len(records) == 0 {
		return models.RunStatusSuccess, "", 0, 0
	}

	ownerID := group.OwnerID
	if job.OwnerID != nil {
		ownerID = *job.OwnerID
	}

	s.manager.StartBulkSession(ctx, groupID, len(records))
	for _, record := range records {
		task := models.SyncTask{
			RecordID:  record.ID,
			OwnerID:   ownerID,
			GroupID:   groupID,
			StartedAt: s.now(),
		}
		if !s.manager.StartSync(ctx, task) {
			// Already in flight elsewhere counts as progress, not failure.
			s.manager.IncrementBulkProgress(groupID)
		}
	}

	if !s.waitForBulk(ctx, groupID) {
		return models.RunStatusTimeout, fmt.Sprintf("bulk sync exceeded %s", s.waitCeiling), len(records), 0
	}

	failed = s.countFailed(ctx, groupID)
	return models.RunStatusSuccess, "", len(records), failed
}

// waitForBulk polls session progress until it closes or the ceiling elapses.
// A ceiling hit stops the waiting only; in-flight workers keep running and
// still self-report when they finish.
func (s *Scheduler) waitForBulk(ctx context.Context, groupID int64) bool {
	deadline := s.now().Add(s.waitCeiling)
	for {
		if !s.manager.IsBulkActive(groupID) {
			return true
		}
		if s.now().After(deadline) {
			return false
		}

		completed, total, _ := s.manager.BulkProgress(groupID)
		s.logger.Debug().
			Int64("group_id", groupID).
			Int("completed", completed).
			Int("total", total).
			Msg("bulk sync in progress")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.progressInterval):
		}
	}
}

func (s *Scheduler) countFailed(ctx context.Context, groupID int64) int {
	records, err := s.records.ListGroupRecords(ctx, groupID, false)
	if err != nil {
		s.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to count failed records")
		return 0
	}
	failed := 0
	for _, record := range records {
		if record.SyncStatus == models.SyncStatusError {
			failed++
		}
	}
	return failed
}

func (s *Scheduler) runDocSet(ctx context.Context, job *models.CronJob) (status, errMsg string) {
	if s.docs == nil {
		return models.RunStatusError, "documentation sync is not configured"
	}

	progress := func(state models.DocsSyncState) {
		s.logger.Debug().
			Int64("job_id", job.ID).
			Str("phase", state.Phase).
			Int("current", state.Current).
			Int("total", state.Total).
			Msg("documentation sync progress")
	}

	if err := s.docs.Run(ctx, job, progress); err != nil {
		return models.RunStatusError, err.Error()
	}
	return models.RunStatusSuccess, ""
}

func (s *Scheduler) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
