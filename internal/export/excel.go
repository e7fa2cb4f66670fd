package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"recmirror/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter writes XLSX reports about sync outcomes for operators who want
// spreadsheets instead of API responses.
type Exporter struct {
	jobs    domain.CronJobStore
	records domain.RecordStore
	dir     string
	logger  *zerolog.Logger
}

func NewExporter(jobs domain.CronJobStore, records domain.RecordStore, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		jobs:    jobs,
		records: records,
		dir:     dir,
		logger:  logger,
	}
}

// ExportJobRuns writes the recent run history of one job and returns the
// file path.
func (e *Exporter) ExportJobRuns(ctx context.Context, jobID int64, limit int) (string, error) {
	runs, err := e.jobs.ListJobRuns(ctx, jobID, limit)
	if err != nil {
		return "", fmt.Errorf("list job runs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Runs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Run ID", "Started", "Finished", "Status", "Error", "Records", "Failed"}
	writeHeaderRow(f, sheetName, headers)

	for i, run := range runs {
		row := i + 2
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(time.RFC3339)
		}
		errMsg := ""
		if run.Error != nil {
			errMsg = *run.Error
		}
		setRow(f, sheetName, row,
			run.RunID,
			run.StartedAt.Format(time.RFC3339),
			finished,
			run.Status,
			errMsg,
			run.RecordsTotal,
			run.RecordsFailed,
		)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "C", 22)
	_ = f.SetColWidth(sheetName, "E", "E", 50)

	path := filepath.Join(e.dir, fmt.Sprintf("job-%d-runs-%s.xlsx", jobID, time.Now().Format("20060102-150405")))
	if err := e.save(f, path); err != nil {
		return "", err
	}

	e.logger.Info().Str("path", path).Int("runs", len(runs)).Msg("exported job run history")
	return path, nil
}

// ExportGroupStatus writes the current sync state of every record in a group.
func (e *Exporter) ExportGroupStatus(ctx context.Context, groupID int64) (string, error) {
	records, err := e.records.ListGroupRecords(ctx, groupID, true)
	if err != nil {
		return "", fmt.Errorf("list group records: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Records"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Record", "Source Ref", "Status", "Last Synced", "Mirror Path", "Error", "Excluded"}
	writeHeaderRow(f, sheetName, headers)

	for i, record := range records {
		row := i + 2
		lastSynced := ""
		if record.LastSyncedAt != nil {
			lastSynced = record.LastSyncedAt.Format(time.RFC3339)
		}
		mirrorPath := ""
		if record.MirrorPath != nil {
			mirrorPath = *record.MirrorPath
		}
		errMsg := ""
		if record.SyncError != nil {
			errMsg = *record.SyncError
		}
		setRow(f, sheetName, row,
			record.Name,
			record.SourceRef,
			record.SyncStatus,
			lastSynced,
			mirrorPath,
			errMsg,
			record.IsExcluded,
		)
	}

	_ = f.SetColWidth(sheetName, "A", "B", 25)
	_ = f.SetColWidth(sheetName, "D", "E", 35)
	_ = f.SetColWidth(sheetName, "F", "F", 50)

	path := filepath.Join(e.dir, fmt.Sprintf("group-%d-status-%s.xlsx", groupID, time.Now().Format("20060102-150405")))
	if err := e.save(f, path); err != nil {
		return "", err
	}

	e.logger.Info().Str("path", path).Int("records", len(records)).Msg("exported group status")
	return path, nil
}

func (e *Exporter) save(f *excelize.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save export: %w", err)
	}
	return nil
}

func writeHeaderRow(f *excelize.File, sheetName string, headers []string) {
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func setRow(f *excelize.File, sheetName string, row int, values ...any) {
	for i, value := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, value)
	}
}
