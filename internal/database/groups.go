package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recmirror/internal/models"
)

// CreateGroup inserts a group and fills in its ID.
func (db *DB) CreateGroup(ctx context.Context, group *models.Group) error {
	query := `INSERT INTO groups (owner_id, source_ref, name, repo_name, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		group.OwnerID, group.SourceRef, group.Name, group.RepoName, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	group.ID = id
	group.CreatedAt = now
	group.UpdatedAt = now
	return nil
}

// GetGroup returns a group by ID.
func (db *DB) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	query := `SELECT id, owner_id, source_ref, name, repo_name, created_at, updated_at
              FROM groups WHERE id = ?`
	var g models.Group
	err := db.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.OwnerID, &g.SourceRef, &g.Name, &g.RepoName, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns all groups ordered by name.
func (db *DB) ListGroups(ctx context.Context) ([]models.Group, error) {
	query := `SELECT id, owner_id, source_ref, name, repo_name, created_at, updated_at
              FROM groups ORDER BY name`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.SourceRef, &g.Name, &g.RepoName, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
