package database

import (
	"context"
	"fmt"
	"time"

	"recmirror/internal/models"
)

// CreateJobRun inserts a run row in the running state and fills in its ID.
func (db *DB) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	query := `INSERT INTO job_runs (job_id, run_id, started_at, status, records_total, records_failed)
              VALUES (?, ?, ?, ?, ?, ?)`
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	result, err := db.db.ExecContext(ctx, query,
		run.JobID, run.RunID, run.StartedAt, run.Status, run.RecordsTotal, run.RecordsFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to create job run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// FinishJobRun closes a run with its final status and counters.
func (db *DB) FinishJobRun(ctx context.Context, id int64, status, errMsg string, total, failed int) error {
	now := time.Now()
	query := `UPDATE job_runs SET finished_at = ?, status = ?, error = ?, records_total = ?, records_failed = ?
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		now, status, truncateError(errMsg, models.MaxErrorLength), total, failed, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobRuns returns the most recent runs of a job, newest first.
func (db *DB) ListJobRuns(ctx context.Context, jobID int64, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job_id, run_id, started_at, finished_at, status, error, records_total, records_failed
              FROM job_runs WHERE job_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := db.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		var r models.JobRun
		if err := rows.Scan(&r.ID, &r.JobID, &r.RunID, &r.StartedAt, &r.FinishedAt,
			&r.Status, &r.Error, &r.RecordsTotal, &r.RecordsFailed); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
