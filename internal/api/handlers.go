package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/database"
	"recmirror/internal/models"
)

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *HTTPServer) handleActiveSyncs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": s.manager.GetActiveSyncs()})
}

func (s *HTTPServer) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecordID int64 `json:"record_id"`
		OwnerID  int64 `json:"owner_id"`
		GroupID  int64 `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.RecordID == 0 {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return
	}

	record, err := s.records.GetRecord(r.Context(), body.RecordID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if body.GroupID == 0 {
		body.GroupID = record.GroupID
	}

	accepted := s.manager.StartSync(r.Context(), models.SyncTask{
		RecordID:  body.RecordID,
		OwnerID:   body.OwnerID,
		GroupID:   body.GroupID,
		StartedAt: time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (s *HTTPServer) handleGroupProgress(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	completed, total, active := s.manager.BulkProgress(groupID)
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id":  groupID,
		"completed": completed,
		"total":     total,
		"active":    active,
	})
}

func (s *HTTPServer) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	// The cache answers first; the durable row is the fallback for cold
	// starts and cache outages.
	if s.cache != nil {
		if snapshot, err := s.cache.GetStatus(r.Context(), recordID); err == nil && snapshot != nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	record, err := s.records.GetRecord(r.Context(), recordID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	snapshot := models.StatusSnapshot{
		RecordID:      record.ID,
		Status:        record.SyncStatus,
		SyncStartedAt: record.SyncStartedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	if record.SyncError != nil {
		snapshot.SyncError = *record.SyncError
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListCronJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type jobRequest struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	GroupID       *int64  `json:"group_id"`
	OwnerID       *int64  `json:"owner_id"`
	SyncKind      string  `json:"sync_kind"`
	ScheduleKind  string  `json:"schedule_kind"`
	IntervalValue int     `json:"interval_value"`
	IntervalUnit  string  `json:"interval_unit"`
	DailyTime     string  `json:"daily_time"`
	IsActive      *bool   `json:"is_active"`
}

func (j *jobRequest) validate() string {
	if j.Name == "" {
		return "name is required"
	}
	switch j.SyncKind {
	case models.SyncKindRecordGroup:
		if j.GroupID == nil {
			return "group_id is required for record group jobs"
		}
	case models.SyncKindDocSet:
	default:
		return "sync_kind must be record_group or doc_set"
	}

	switch j.ScheduleKind {
	case models.ScheduleInterval:
		if j.IntervalValue <= 0 {
			return "interval_value must be positive"
		}
		switch j.IntervalUnit {
		case models.UnitMinutes, models.UnitHours, models.UnitDays, models.UnitWeeks:
		default:
			return "interval_unit must be minutes, hours, days or weeks"
		}
	case models.ScheduleDailyTime:
		if !config.ValidDailyTime(j.DailyTime) {
			return "daily_time must be HH:MM"
		}
	default:
		return "schedule_kind must be interval or daily_time"
	}
	return ""
}

func (j *jobRequest) apply(job *models.CronJob) {
	job.Name = j.Name
	job.Description = j.Description
	job.GroupID = j.GroupID
	job.OwnerID = j.OwnerID
	job.SyncKind = j.SyncKind
	job.ScheduleKind = j.ScheduleKind
	job.IntervalValue = j.IntervalValue
	job.IntervalUnit = j.IntervalUnit
	job.DailyTime = j.DailyTime
	if j.IsActive != nil {
		job.IsActive = *j.IsActive
	}
}

func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body jobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := body.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	job := &models.CronJob{IsActive: true}
	body.apply(job)
	if err := s.jobs.CreateCronJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.jobs.GetCronJob(r.Context(), jobID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.jobs.GetCronJob(r.Context(), jobID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	var body jobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := body.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	body.apply(job)
	if err := s.jobs.UpdateCronJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := s.jobs.DeleteCronJob(r.Context(), jobID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if _, err := s.jobs.GetCronJob(r.Context(), jobID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	// A run can supervise a bulk session for up to an hour, so it runs
	// detached and the caller polls progress instead of waiting.
	go func() {
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.runner.RunNow(ctx, jobID); err != nil {
			s.logger.Error().Err(err).Int64("job_id", jobID).Msg("manual job run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "started": true})
}

func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.jobs.ListJobRuns(r.Context(), jobID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) handleExportGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	path, err := s.export.ExportGroupStatus(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *HTTPServer) handleExportJobRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	path, err := s.export.ExportJobRuns(r.Context(), jobID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}
