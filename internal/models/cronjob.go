package models

import (
	"fmt"
	"time"
)

// CronJob is a persisted schedule definition that periodically triggers a
// bulk group sync or a documentation-set refresh.
type CronJob struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description"`
	GroupID       *int64     `json:"group_id"`
	OwnerID       *int64     `json:"owner_id"`
	SyncKind      string     `json:"sync_kind"`
	ScheduleKind  string     `json:"schedule_kind"`
	IntervalValue int        `json:"interval_value"`
	IntervalUnit  string     `json:"interval_unit"`
	DailyTime     string     `json:"daily_time"`
	IsActive      bool       `json:"is_active"`
	LastRun       *time.Time `json:"last_run"`
	NextRun       *time.Time `json:"next_run"`
	LastStatus    *string    `json:"last_status"`
	LastError     *string    `json:"last_error"`
	RunCount      int        `json:"run_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ScheduleDescription returns a human-readable summary of the schedule.
func (j *CronJob) ScheduleDescription() string {
	switch j.ScheduleKind {
	case ScheduleInterval:
		return fmt.Sprintf("every %d %s", j.IntervalValue, j.IntervalUnit)
	case ScheduleDailyTime:
		return fmt.Sprintf("daily at %s", j.DailyTime)
	}
	return "unknown"
}

// JobRun is one recorded execution of a cron job.
type JobRun struct {
	ID            int64      `json:"id"`
	JobID         int64      `json:"job_id"`
	RunID         string     `json:"run_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Status        string     `json:"status"`
	Error         *string    `json:"error"`
	RecordsTotal  int        `json:"records_total"`
	RecordsFailed int        `json:"records_failed"`
}
