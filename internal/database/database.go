package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS groups (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            source_ref TEXT NOT NULL,
            name TEXT NOT NULL,
            repo_name TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            group_id INTEGER NOT NULL,
            source_ref TEXT NOT NULL,
            name TEXT NOT NULL,
            mirror_path TEXT,
            is_excluded BOOLEAN NOT NULL DEFAULT 0,
            sync_status TEXT NOT NULL DEFAULT 'idle',
            sync_started_at DATETIME,
            sync_error TEXT,
            drive_file_id TEXT,
            drive_uploaded_at DATETIME,
            last_synced_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(group_id, source_ref)
        )`,

		`CREATE TABLE IF NOT EXISTS record_dependencies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source_record_id INTEGER NOT NULL,
            target_record_id INTEGER NOT NULL,
            source_ref TEXT NOT NULL,
            target_ref TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(source_record_id, target_record_id)
        )`,

		`CREATE TABLE IF NOT EXISTS cron_jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT,
            group_id INTEGER,
            owner_id INTEGER,
            sync_kind TEXT NOT NULL,
            schedule_kind TEXT NOT NULL,
            interval_value INTEGER NOT NULL DEFAULT 0,
            interval_unit TEXT NOT NULL DEFAULT '',
            daily_time TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            last_run DATETIME,
            next_run DATETIME,
            last_status TEXT,
            last_error TEXT,
            run_count INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS job_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id INTEGER NOT NULL,
            run_id TEXT NOT NULL,
            started_at DATETIME NOT NULL,
            finished_at DATETIME,
            status TEXT NOT NULL,
            error TEXT,
            records_total INTEGER NOT NULL DEFAULT 0,
            records_failed INTEGER NOT NULL DEFAULT 0
        )`,

		`CREATE INDEX IF NOT EXISTS idx_records_group_id ON records(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_sync_status ON records(sync_status)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_source ON record_dependencies(source_record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_target ON record_dependencies(target_record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cron_jobs_next_run ON cron_jobs(is_active, next_run)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_job_id ON job_runs(job_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ExecContext exposes raw statement execution for tests and migrations.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// QueryRowContext exposes raw row queries for tests.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

func (db *DB) Close() error {
	return db.db.Close()
}

func truncateError(msg string, limit int) *string {
	if msg == "" {
		return nil
	}
	if limit > 0 && len(msg) > limit {
		msg = msg[:limit]
	}
	return &msg
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
