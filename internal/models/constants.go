package models

// Record sync status projection. Idle doubles as "last sync succeeded".
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Cron job run outcomes.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
	RunStatusTimeout = "timeout"
	RunStatusSkipped = "skipped"
)

// Cron job sync kinds.
const (
	SyncKindRecordGroup = "record_group"
	SyncKindDocSet      = "doc_set"
)

// Cron job schedule kinds.
const (
	ScheduleInterval  = "interval"
	ScheduleDailyTime = "daily_time"
)

// Interval units for interval-based jobs.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
	UnitWeeks   = "weeks"
)

// Documentation sync phases.
const (
	DocsPhaseInit       = "init"
	DocsPhaseFetching   = "fetching"
	DocsPhaseRendering  = "rendering"
	DocsPhasePublishing = "publishing"
	DocsPhaseDone       = "done"
)

const (
	// DefaultSyncWorkers bounds concurrent record syncs. Kept low to avoid
	// write conflicts on the shared mirror repository.
	DefaultSyncWorkers = 2

	// MaxErrorLength truncates persisted sync/job error messages.
	MaxErrorLength = 1000

	// DefaultStatusTTL время жизни снапшота статуса в Redis (секунды).
	DefaultStatusTTL = 24 * 60 * 60
)
