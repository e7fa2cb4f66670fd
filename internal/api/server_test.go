package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/database"
	"recmirror/internal/models"
	"recmirror/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	mu      sync.Mutex
	active  []models.SyncTask
	refuse  map[int64]bool
	started []models.SyncTask

	bulkDone   int
	bulkTotal  int
	bulkActive bool
}

func (m *fakeManager) IsSyncing(recordID int64) bool { return false }

func (m *fakeManager) StartSync(ctx context.Context, task models.SyncTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse[task.RecordID] {
		return false
	}
	m.started = append(m.started, task)
	return true
}

func (m *fakeManager) GetActiveSyncs() []models.SyncTask { return m.active }

func (m *fakeManager) StartBulkSession(ctx context.Context, groupID int64, total int) string {
	return "session-1"
}

func (m *fakeManager) IncrementBulkProgress(groupID int64) (int, int, bool) { return 0, 0, false }

func (m *fakeManager) EndBulkSession(ctx context.Context, groupID int64) {}

func (m *fakeManager) IsBulkActive(groupID int64) bool { return m.bulkActive }

func (m *fakeManager) BulkProgress(groupID int64) (int, int, bool) {
	return m.bulkDone, m.bulkTotal, m.bulkActive
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []int64
	err  error
}

func (r *fakeRunner) RunNow(ctx context.Context, jobID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return models.RunStatusSuccess, r.err
}

type fakeExporter struct {
	err error
}

func (e *fakeExporter) ExportJobRuns(ctx context.Context, jobID int64, limit int) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf("exports/job-%d.xlsx", jobID), nil
}

func (e *fakeExporter) ExportGroupStatus(ctx context.Context, groupID int64) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf("exports/group-%d.xlsx", groupID), nil
}

type apiFixture struct {
	srv     *HTTPServer
	db      *database.DB
	manager *fakeManager
	runner  *fakeRunner
	cache   *repository.MemoryStatusCache
	group   *models.Group
}

func newAPIFixture(t *testing.T, cfg config.APIConfig) *apiFixture {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	group := &models.Group{OwnerID: 1, SourceRef: "team-a", Name: "Team A", RepoName: "team-a-mirror"}
	require.NoError(t, db.CreateGroup(context.Background(), group))

	manager := &fakeManager{refuse: make(map[int64]bool)}
	runner := &fakeRunner{}
	cache := repository.NewMemoryStatusCache()

	srv := NewHTTPServer(cfg, Deps{
		Manager: manager,
		Records: db,
		Jobs:    db,
		Cache:   cache,
		Runner:  runner,
		Export:  &fakeExporter{},
		Logger:  &logger,
	})
	return &apiFixture{srv: srv, db: db, manager: manager, runner: runner, cache: cache, group: group}
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, Port: 8080}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (f *apiFixture) createRecord(t *testing.T, ref string) *models.Record {
	record := &models.Record{GroupID: f.group.ID, SourceRef: ref, Name: ref}
	require.NoError(t, f.db.CreateRecord(context.Background(), record))
	return record
}

func (f *apiFixture) createJob(t *testing.T) *models.CronJob {
	job := &models.CronJob{
		Name:          "group sync",
		GroupID:       &f.group.ID,
		SyncKind:      models.SyncKindRecordGroup,
		ScheduleKind:  models.ScheduleInterval,
		IntervalValue: 30,
		IntervalUnit:  models.UnitMinutes,
		IsActive:      true,
	}
	require.NoError(t, f.db.CreateCronJob(context.Background(), job))
	return job
}

func TestActiveSyncs(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	f.manager.active = []models.SyncTask{{RecordID: 7, GroupID: f.group.ID}}

	rec := f.do(t, http.MethodGet, "/api/v1/syncs/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Active []models.SyncTask `json:"active"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Active, 1)
	assert.Equal(t, int64(7), resp.Active[0].RecordID)
}

func TestStartSync(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	record := f.createRecord(t, "orders")

	rec := f.do(t, http.MethodPost, "/api/v1/syncs", map[string]any{"record_id": record.ID, "owner_id": 1})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Accepted)
	require.Len(t, f.manager.started, 1)
	assert.Equal(t, f.group.ID, f.manager.started[0].GroupID)
}

func TestStartSyncRefusedWhileRunning(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	record := f.createRecord(t, "orders")
	f.manager.refuse[record.ID] = true

	rec := f.do(t, http.MethodPost, "/api/v1/syncs", map[string]any{"record_id": record.ID})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	decode(t, rec, &resp)
	assert.False(t, resp.Accepted)
}

func TestStartSyncUnknownRecord(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	rec := f.do(t, http.MethodPost, "/api/v1/syncs", map[string]any{"record_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/syncs", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordStatusFromCache(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	record := f.createRecord(t, "orders")

	require.NoError(t, f.cache.SetStatus(context.Background(), &models.StatusSnapshot{
		RecordID: record.ID,
		Status:   models.SyncStatusSyncing,
	}))

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/records/%d/status", record.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.StatusSnapshot
	decode(t, rec, &snapshot)
	assert.Equal(t, models.SyncStatusSyncing, snapshot.Status)
}

func TestRecordStatusFallsBackToDatabase(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	record := f.createRecord(t, "orders")
	require.NoError(t, f.db.UpdateRecordSyncStatus(context.Background(), record.ID, models.SyncStatusError, nil, "fetch failed"))

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/records/%d/status", record.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.StatusSnapshot
	decode(t, rec, &snapshot)
	assert.Equal(t, models.SyncStatusError, snapshot.Status)
	assert.Equal(t, "fetch failed", snapshot.SyncError)
}

func TestRecordStatusNotFound(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/records/999/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupProgress(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	f.manager.bulkDone = 3
	f.manager.bulkTotal = 10
	f.manager.bulkActive = true

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/groups/%d/progress", f.group.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Completed int  `json:"completed"`
		Total     int  `json:"total"`
		Active    bool `json:"active"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Completed)
	assert.Equal(t, 10, resp.Total)
	assert.True(t, resp.Active)
}

func TestCreateJobValidation(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"sync_kind": models.SyncKindDocSet, "schedule_kind": models.ScheduleDailyTime, "daily_time": "03:00"}},
		{"bad sync kind", map[string]any{"name": "j", "sync_kind": "weird", "schedule_kind": models.ScheduleDailyTime, "daily_time": "03:00"}},
		{"group job without group", map[string]any{"name": "j", "sync_kind": models.SyncKindRecordGroup, "schedule_kind": models.ScheduleDailyTime, "daily_time": "03:00"}},
		{"bad daily time", map[string]any{"name": "j", "sync_kind": models.SyncKindDocSet, "schedule_kind": models.ScheduleDailyTime, "daily_time": "25:99"}},
		{"zero interval", map[string]any{"name": "j", "sync_kind": models.SyncKindDocSet, "schedule_kind": models.ScheduleInterval, "interval_value": 0, "interval_unit": models.UnitHours}},
		{"bad unit", map[string]any{"name": "j", "sync_kind": models.SyncKindDocSet, "schedule_kind": models.ScheduleInterval, "interval_value": 1, "interval_unit": "fortnights"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/jobs", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	rec := f.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"name":           "nightly",
		"group_id":       f.group.ID,
		"sync_kind":      models.SyncKindRecordGroup,
		"schedule_kind":  models.ScheduleDailyTime,
		"daily_time":     "03:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.CronJob
	decode(t, rec, &created)
	require.NotZero(t, created.ID)
	assert.True(t, created.IsActive)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/jobs/%d", created.ID), map[string]any{
		"name":           "nightly",
		"group_id":       f.group.ID,
		"sync_kind":      models.SyncKindRecordGroup,
		"schedule_kind":  models.ScheduleInterval,
		"interval_value": 2,
		"interval_unit":  models.UnitHours,
		"is_active":      false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.CronJob
	decode(t, rec, &updated)
	assert.Equal(t, models.ScheduleInterval, updated.ScheduleKind)
	assert.False(t, updated.IsActive)

	rec = f.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs []models.CronJob `json:"jobs"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Jobs, 1)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/jobs/%d", created.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobNotFound(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/jobs/999", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/v1/jobs/999", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/jobs/999/run", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/jobs/abc", nil).Code)
}

func TestRunJob(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	job := f.createJob(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/run", job.ID), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		f.runner.mu.Lock()
		defer f.runner.mu.Unlock()
		return len(f.runner.runs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestListRuns(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	job := f.createJob(t)

	run := &models.JobRun{JobID: job.ID, RunID: "run-1", StartedAt: time.Now()}
	require.NoError(t, f.db.CreateJobRun(context.Background(), run))
	require.NoError(t, f.db.FinishJobRun(context.Background(), run.ID, models.RunStatusSuccess, "", 3, 0))

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d/runs", job.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []models.JobRun `json:"runs"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "run-1", resp.Runs[0].RunID)
}

func TestExports(t *testing.T) {
	f := newAPIFixture(t, openConfig())
	job := f.createJob(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exports/jobs/%d", job.ID), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Contains(t, resp["path"], "job-")

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exports/groups/%d", f.group.ID), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func authedConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    8080,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "reader-key", Name: "reader", Permissions: []string{"read:status", "read:jobs"}},
				{Key: "admin-key", Name: "admin"},
			},
		},
	}
}

func TestAuthMissingKey(t *testing.T) {
	f := newAPIFixture(t, authedConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/syncs/active", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthInvalidKey(t *testing.T) {
	f := newAPIFixture(t, authedConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/syncs/active", nil)
	req.Header.Set("x-api-key", "wrong")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthPermissionDenied(t *testing.T) {
	f := newAPIFixture(t, authedConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/syncs", bytes.NewReader([]byte(`{"record_id":1}`)))
	req.Header.Set("x-api-key", "reader-key")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthAllowsPermittedKey(t *testing.T) {
	f := newAPIFixture(t, authedConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/syncs/active", nil)
	req.Header.Set("x-api-key", "reader-key")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthKeyWithoutPermissionListAllowsAll(t *testing.T) {
	f := newAPIFixture(t, authedConfig())
	record := f.createRecord(t, "orders")

	raw, err := json.Marshal(map[string]any{"record_id": record.ID})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/syncs", bytes.NewReader(raw))
	req.Header.Set("x-api-key", "admin-key")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := openConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}
	f := newAPIFixture(t, cfg)

	limited := false
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodGet, "/api/v1/syncs/active", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)

	var errResp map[string]string
	require.NoError(t, json.Unmarshal(f.do(t, http.MethodGet, "/api/v1/syncs/active", nil).Body.Bytes(), &errResp))
	assert.Equal(t, "rate limit exceeded", errResp["error"])
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t, openConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
