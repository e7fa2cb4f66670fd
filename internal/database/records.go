package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recmirror/internal/models"
)

const recordColumns = `id, group_id, source_ref, name, mirror_path, is_excluded, sync_status,
        sync_started_at, sync_error, drive_file_id, drive_uploaded_at, last_synced_at, created_at, updated_at`

func scanRecord(scanner interface{ Scan(...any) error }) (*models.Record, error) {
	var r models.Record
	err := scanner.Scan(
		&r.ID, &r.GroupID, &r.SourceRef, &r.Name, &r.MirrorPath, &r.IsExcluded, &r.SyncStatus,
		&r.SyncStartedAt, &r.SyncError, &r.DriveFileID, &r.DriveUploadAt, &r.LastSyncedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecord inserts a record and fills in its ID.
func (db *DB) CreateRecord(ctx context.Context, record *models.Record) error {
	query := `INSERT INTO records (group_id, source_ref, name, mirror_path, is_excluded, sync_status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if record.SyncStatus == "" {
		record.SyncStatus = models.SyncStatusIdle
	}
	result, err := db.db.ExecContext(ctx, query,
		record.GroupID, record.SourceRef, record.Name, record.MirrorPath,
		record.IsExcluded, record.SyncStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	record.CreatedAt = now
	record.UpdatedAt = now
	return nil
}

// GetRecord returns a record by ID.
func (db *DB) GetRecord(ctx context.Context, id int64) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`
	record, err := scanRecord(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// GetRecordBySourceRef returns the local counterpart of an external record
// reference within a group, or ErrNotFound when none is tracked.
func (db *DB) GetRecordBySourceRef(ctx context.Context, groupID int64, sourceRef string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE group_id = ? AND source_ref = ?`
	record, err := scanRecord(db.db.QueryRowContext(ctx, query, groupID, sourceRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record by source ref: %w", err)
	}
	return record, nil
}

// ListGroupRecords returns records in a group, excluding opted-out ones
// unless includeExcluded is set.
func (db *DB) ListGroupRecords(ctx context.Context, groupID int64, includeExcluded bool) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE group_id = ?`
	if !includeExcluded {
		query += ` AND is_excluded = 0`
	}
	query += ` ORDER BY name`

	rows, err := db.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateRecordSyncStatus writes the durable status projection.
// startedAt is set only for the syncing transition; errMsg only for error.
func (db *DB) UpdateRecordSyncStatus(ctx context.Context, id int64, status string, startedAt *time.Time, errMsg string) error {
	query := `UPDATE records SET sync_status = ?, sync_started_at = ?, sync_error = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query,
		status, nullableTime(startedAt), truncateError(errMsg, models.MaxErrorLength), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update record sync status: %w", err)
	}
	return nil
}

// MarkRecordSynced records a successful mirror write.
func (db *DB) MarkRecordSynced(ctx context.Context, id int64, mirrorPath string) error {
	now := time.Now()
	query := `UPDATE records SET mirror_path = ?, last_synced_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, mirrorPath, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return nil
}

// SetRecordDriveFile stores the Drive file ID after an upload.
func (db *DB) SetRecordDriveFile(ctx context.Context, id int64, fileID string) error {
	now := time.Now()
	query := `UPDATE records SET drive_file_id = ?, drive_uploaded_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, fileID, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to set record drive file: %w", err)
	}
	return nil
}

// ResetStaleSyncing flips records stuck in `syncing` since before cutoff to
// `error`. Run once on startup: a crash mid-task leaves no other recovery path.
func (db *DB) ResetStaleSyncing(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE records SET sync_status = ?, sync_error = ?, updated_at = ?
              WHERE sync_status = ? AND (sync_started_at IS NULL OR sync_started_at < ?)`
	result, err := db.db.ExecContext(ctx, query,
		models.SyncStatusError, "sync interrupted by restart", time.Now(),
		models.SyncStatusSyncing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale syncing records: %w", err)
	}
	return result.RowsAffected()
}

// ReplaceDependents swaps the set of records known to reference the target.
// The catalog reports dependents per fetched record, so edges are keyed by
// their target.
func (db *DB) ReplaceDependents(ctx context.Context, targetRecordID int64, deps []models.RecordDependency) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM record_dependencies WHERE target_record_id = ?`, targetRecordID); err != nil {
		return fmt.Errorf("failed to clear dependents: %w", err)
	}

	for _, dep := range deps {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO record_dependencies (source_record_id, target_record_id, source_ref, target_ref, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			dep.SourceRecordID, targetRecordID, dep.SourceRef, dep.TargetRef, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert dependent: %w", err)
		}
	}

	return tx.Commit()
}

// ListDependents returns the records referencing the target.
func (db *DB) ListDependents(ctx context.Context, targetRecordID int64) ([]models.RecordDependency, error) {
	query := `SELECT id, source_record_id, target_record_id, source_ref, target_ref, created_at
              FROM record_dependencies WHERE target_record_id = ? ORDER BY source_ref`
	rows, err := db.db.QueryContext(ctx, query, targetRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	defer rows.Close()

	var deps []models.RecordDependency
	for rows.Next() {
		var d models.RecordDependency
		if err := rows.Scan(&d.ID, &d.SourceRecordID, &d.TargetRecordID, &d.SourceRef, &d.TargetRef, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependent: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
