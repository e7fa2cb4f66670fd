package domain

import (
	"context"
	"encoding/json"
	"time"

	"recmirror/internal/models"
)

type RecordStore interface {
	GetRecord(ctx context.Context, id int64) (*models.Record, error)
	GetRecordBySourceRef(ctx context.Context, groupID int64, sourceRef string) (*models.Record, error)
	ListGroupRecords(ctx context.Context, groupID int64, includeExcluded bool) ([]models.Record, error)
	CreateRecord(ctx context.Context, record *models.Record) error
	UpdateRecordSyncStatus(ctx context.Context, id int64, status string, startedAt *time.Time, errMsg string) error
	MarkRecordSynced(ctx context.Context, id int64, mirrorPath string) error
	SetRecordDriveFile(ctx context.Context, id int64, fileID string) error
	ReplaceDependents(ctx context.Context, targetRecordID int64, deps []models.RecordDependency) error
	ListDependents(ctx context.Context, targetRecordID int64) ([]models.RecordDependency, error)
	ResetStaleSyncing(ctx context.Context, cutoff time.Time) (int64, error)
}

type GroupStore interface {
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) error
}

type CronJobStore interface {
	GetCronJob(ctx context.Context, id int64) (*models.CronJob, error)
	ListCronJobs(ctx context.Context) ([]models.CronJob, error)
	ListDueJobs(ctx context.Context, now time.Time) ([]models.CronJob, error)
	CreateCronJob(ctx context.Context, job *models.CronJob) error
	UpdateCronJob(ctx context.Context, job *models.CronJob) error
	DeleteCronJob(ctx context.Context, id int64) error
	MarkJobRunning(ctx context.Context, id int64, startedAt time.Time) error
	FinishJob(ctx context.Context, id int64, startedAt time.Time, status, errMsg string, nextRun *time.Time) error
	CreateJobRun(ctx context.Context, run *models.JobRun) error
	FinishJobRun(ctx context.Context, id int64, status, errMsg string, total, failed int) error
	ListJobRuns(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error)
}

// RecordStructure is what the catalog returns for one record: its schema
// document plus the source refs of records that point back at it.
type RecordStructure struct {
	Structure  json.RawMessage
	Dependents []string
}

// DataSource reads record structures from the external catalog.
type DataSource interface {
	FetchStructure(ctx context.Context, group *models.Group, sourceRef string) (*RecordStructure, error)
}

// MirrorRepository writes structure documents into the versioned store.
type MirrorRepository interface {
	EnsureRepo(ctx context.Context, repoName string) error
	WriteFile(ctx context.Context, repoName, path string, content []byte, message string) error
}

// StatusCache keeps a fast-read copy of record sync statuses and bulk
// session progress next to the durable rows.
type StatusCache interface {
	SetStatus(ctx context.Context, snapshot *models.StatusSnapshot) error
	GetStatus(ctx context.Context, recordID int64) (*models.StatusSnapshot, error)
	SetBulkProgress(ctx context.Context, groupID int64, done, total int) error
	GetBulkProgress(ctx context.Context, groupID int64) (done, total int, err error)
	ClearBulkProgress(ctx context.Context, groupID int64) error
}

// SyncManager is the concurrent execution core that the scheduler and the
// HTTP surface drive.
type SyncManager interface {
	IsSyncing(recordID int64) bool
	StartSync(ctx context.Context, task models.SyncTask) bool
	GetActiveSyncs() []models.SyncTask
	StartBulkSession(ctx context.Context, groupID int64, total int) string
	IncrementBulkProgress(groupID int64) (done, total int, finished bool)
	EndBulkSession(ctx context.Context, groupID int64)
	IsBulkActive(groupID int64) bool
	BulkProgress(groupID int64) (done, total int, active bool)
}

// DriveUploader mirrors structure documents to Google Drive.
type DriveUploader interface {
	UploadStructure(ctx context.Context, name string, content []byte, existingFileID string) (string, error)
}

// DocSetRunner refreshes an external documentation set end to end.
type DocSetRunner interface {
	Run(ctx context.Context, job *models.CronJob, progress func(models.DocsSyncState)) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers operator-facing messages about sync outcomes.
type Notifier interface {
	NotifySyncError(ctx context.Context, record *models.Record, errMsg string)
	NotifyJobFinished(ctx context.Context, job *models.CronJob, status string)
}
