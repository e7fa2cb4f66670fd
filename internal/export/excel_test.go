package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"recmirror/internal/database"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupExporter(t *testing.T) (*Exporter, *database.DB, *models.Group) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	group := &models.Group{OwnerID: 1, SourceRef: "team-a", Name: "Team A", RepoName: "team-a-mirror"}
	require.NoError(t, db.CreateGroup(context.Background(), group))

	exporter := NewExporter(db, db, t.TempDir(), &logger)
	return exporter, db, group
}

func TestExportJobRuns(t *testing.T) {
	exporter, db, _ := setupExporter(t)
	ctx := context.Background()

	job := &models.CronJob{Name: "j", SyncKind: models.SyncKindRecordGroup,
		ScheduleKind: models.ScheduleInterval, IntervalValue: 1, IntervalUnit: models.UnitHours, IsActive: true}
	require.NoError(t, db.CreateCronJob(ctx, job))

	run := &models.JobRun{JobID: job.ID, RunID: "run-1", StartedAt: time.Now()}
	require.NoError(t, db.CreateJobRun(ctx, run))
	require.NoError(t, db.FinishJobRun(ctx, run.ID, models.RunStatusSuccess, "", 5, 1))

	path, err := exporter.ExportJobRuns(ctx, job.ID, 10)
	require.NoError(t, err)
	require.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Runs")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Run ID", rows[0][0])
	assert.Equal(t, "run-1", rows[1][0])
	assert.Equal(t, models.RunStatusSuccess, rows[1][3])
}

func TestExportGroupStatus(t *testing.T) {
	exporter, db, group := setupExporter(t)
	ctx := context.Background()

	record := &models.Record{GroupID: group.ID, SourceRef: "orders", Name: "Orders"}
	require.NoError(t, db.CreateRecord(ctx, record))
	require.NoError(t, db.UpdateRecordSyncStatus(ctx, record.ID, models.SyncStatusError, nil, "fetch failed"))

	path, err := exporter.ExportGroupStatus(ctx, group.ID)
	require.NoError(t, err)
	require.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Records")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Orders", rows[1][0])
	assert.Equal(t, models.SyncStatusError, rows[1][2])
	assert.Equal(t, "fetch failed", rows[1][5])
}

func TestExportEmptyGroup(t *testing.T) {
	exporter, _, group := setupExporter(t)

	path, err := exporter.ExportGroupStatus(context.Background(), group.ID)
	require.NoError(t, err)
	require.FileExists(t, path)
}
