package models

import "time"

// Record is a logical data source tracked by the platform and mirrored
// into the external versioned store.
type Record struct {
	ID            int64      `json:"id"`
	GroupID       int64      `json:"group_id"`
	SourceRef     string     `json:"source_ref"`
	Name          string     `json:"name"`
	MirrorPath    *string    `json:"mirror_path"`
	IsExcluded    bool       `json:"is_excluded"`
	SyncStatus    string     `json:"sync_status"`
	SyncStartedAt *time.Time `json:"sync_started_at"`
	SyncError     *string    `json:"sync_error"`
	DriveFileID   *string    `json:"drive_file_id"`
	DriveUploadAt *time.Time `json:"drive_uploaded_at"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Group is the owning collection of records synced together as one bulk unit.
type Group struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	SourceRef string    `json:"source_ref"`
	Name      string    `json:"name"`
	RepoName  string    `json:"repo_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordDependency is a directed edge: the source record references the
// target record in its structure.
type RecordDependency struct {
	ID             int64     `json:"id"`
	SourceRecordID int64     `json:"source_record_id"`
	TargetRecordID int64     `json:"target_record_id"`
	SourceRef      string    `json:"source_ref"`
	TargetRef      string    `json:"target_ref"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusSnapshot is the externally visible projection of a record's sync
// state, cached for UIs that poll progress.
type StatusSnapshot struct {
	RecordID      int64      `json:"record_id"`
	Status        string     `json:"status"`
	SyncStartedAt *time.Time `json:"sync_started_at,omitempty"`
	SyncError     string     `json:"sync_error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
