package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recmirror/internal/models"
)

const cronJobColumns = `id, name, description, group_id, owner_id, sync_kind, schedule_kind,
        interval_value, interval_unit, daily_time, is_active, last_run, next_run,
        last_status, last_error, run_count, created_at, updated_at`

func scanCronJob(scanner interface{ Scan(...any) error }) (*models.CronJob, error) {
	var j models.CronJob
	err := scanner.Scan(
		&j.ID, &j.Name, &j.Description, &j.GroupID, &j.OwnerID, &j.SyncKind, &j.ScheduleKind,
		&j.IntervalValue, &j.IntervalUnit, &j.DailyTime, &j.IsActive, &j.LastRun, &j.NextRun,
		&j.LastStatus, &j.LastError, &j.RunCount, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateCronJob inserts a job and fills in its ID.
func (db *DB) CreateCronJob(ctx context.Context, job *models.CronJob) error {
	query := `INSERT INTO cron_jobs (name, description, group_id, owner_id, sync_kind, schedule_kind,
              interval_value, interval_unit, daily_time, is_active, next_run, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		job.Name, job.Description, job.GroupID, job.OwnerID, job.SyncKind, job.ScheduleKind,
		job.IntervalValue, job.IntervalUnit, job.DailyTime, job.IsActive,
		nullableTime(job.NextRun), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create cron job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// GetCronJob returns a job by ID.
func (db *DB) GetCronJob(ctx context.Context, id int64) (*models.CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs WHERE id = ?`
	job, err := scanCronJob(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cron job: %w", err)
	}
	return job, nil
}

// ListCronJobs returns all jobs, active first.
func (db *DB) ListCronJobs(ctx context.Context) ([]models.CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs ORDER BY is_active DESC, name`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.CronJob
	for rows.Next() {
		job, err := scanCronJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cron job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListDueJobs returns active jobs whose next_run is at or before now.
// Jobs that never ran and carry no next_run are due immediately.
func (db *DB) ListDueJobs(ctx context.Context, now time.Time) ([]models.CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs
              WHERE is_active = 1 AND (next_run IS NULL OR next_run <= ?)
              ORDER BY next_run`
	rows, err := db.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.CronJob
	for rows.Next() {
		job, err := scanCronJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cron job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateCronJob rewrites the editable fields of a job.
func (db *DB) UpdateCronJob(ctx context.Context, job *models.CronJob) error {
	query := `UPDATE cron_jobs SET name = ?, description = ?, group_id = ?, owner_id = ?,
              sync_kind = ?, schedule_kind = ?, interval_value = ?, interval_unit = ?,
              daily_time = ?, is_active = ?, next_run = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		job.Name, job.Description, job.GroupID, job.OwnerID,
		job.SyncKind, job.ScheduleKind, job.IntervalValue, job.IntervalUnit,
		job.DailyTime, job.IsActive, nullableTime(job.NextRun), time.Now(),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cron job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkJobRunning stamps last_run at execution start, before the work begins.
func (db *DB) MarkJobRunning(ctx context.Context, id int64, startedAt time.Time) error {
	query := `UPDATE cron_jobs SET last_run = ?, last_status = ?, updated_at = ? WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, startedAt, models.RunStatusRunning, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishJob records the outcome of one execution. Last run, status, error,
// run count and the next scheduled time are written in a single statement so
// a crash between them cannot leave the tracking fields disagreeing.
func (db *DB) FinishJob(ctx context.Context, id int64, startedAt time.Time, status, errMsg string, nextRun *time.Time) error {
	query := `UPDATE cron_jobs SET last_run = ?, last_status = ?, last_error = ?,
              run_count = run_count + 1, next_run = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		startedAt, status, truncateError(errMsg, models.MaxErrorLength), nullableTime(nextRun), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCronJob removes a job and its run history.
func (db *DB) DeleteCronJob(ctx context.Context, id int64) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_runs WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job runs: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cron job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
