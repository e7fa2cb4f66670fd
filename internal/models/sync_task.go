package models

import "time"

// SyncTask represents an in-flight sync for a single record. Tasks live
// only in the orchestrator's registry and are never persisted.
type SyncTask struct {
	RecordID  int64     `json:"record_id"`
	OwnerID   int64     `json:"owner_id"`
	GroupID   int64     `json:"group_id"`
	StartedAt time.Time `json:"started_at"`
}

// DocsSyncState reports progress of a documentation-set refresh.
type DocsSyncState struct {
	JobID     int64     `json:"job_id"`
	OwnerID   int64     `json:"owner_id"`
	StartedAt time.Time `json:"started_at"`
	Phase     string    `json:"phase"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
}
