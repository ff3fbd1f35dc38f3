// Package export turns survey records into a spreadsheet file on disk
// without buffering the whole dataset in memory.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"survey-export/internal/models"
	"survey-export/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ErrStreamWrite wraps any I/O or encoding failure while writing the
// spreadsheet. It aborts the current attempt and is eligible for
// job-level retry.
var ErrStreamWrite = errors.New("stream write failed")

// ProgressFunc receives incremental progress in [0,99]. Implementations
// handle their own failures; a failing sink never aborts an export.
type ProgressFunc func(percent int)

// progressRowInterval is how often the progress sink is invoked
const progressRowInterval = 200

const sheetName = "Surveys"

// Result describes a finished spreadsheet. The temporary file at
// FilePath is owned by the caller, including cleanup after a failure.
type Result struct {
	FilePath  string
	TotalRows int64
}

type column struct {
	header string
	width  float64
}

// exportColumns is the fixed, ordered output schema. Columns are never
// derived from the record schema at call time.
var exportColumns = []column{
	{"Surveyor Name", 20},
	{"Phone", 15},
	{"Date", 20},
	{"Ward No", 10},
	{"Property Address", 30},
	{"Zip Code", 12},
	{"Latitude", 12},
	{"Longitude", 12},
	{"Occupiers Name", 20},
	{"Gender", 10},
	{"Father Name", 20},
	{"Mother Name", 20},
	{"Contact Number", 15},
	{"Owner Or Tenant", 12},
	{"Monthly Rent", 12},
	{"Owner Name", 20},
	{"Owner Father Name", 20},
	{"Owner Mother Name", 20},
	{"Owner Contact Number", 15},
	{"Tenant Street Address", 30},
	{"Tenant Zip Code", 12},
	{"Area Of Plot", 12},
	{"Nature Of Building", 20},
	{"Number Of Floors", 12},
	{"Floor", 10},
	{"Floor Area", 12},
	{"Usage Type", 15},
	{"Main Gate Photo URL", 50},
	{"Building Photo URL", 50},
	{"Created At", 20},
}

// Exporter streams matching survey records into an xlsx file
type Exporter struct {
	store  store.SurveyStore
	tmpDir string
	logger *logrus.Logger
}

// NewExporter creates a new exporter writing temporary files to tmpDir
// (the OS temp dir when empty).
func NewExporter(surveyStore store.SurveyStore, tmpDir string, logger *logrus.Logger) *Exporter {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Exporter{
		store:  surveyStore,
		tmpDir: tmpDir,
		logger: logger,
	}
}

// Export writes one header row plus one row per record matching filters,
// newest first, reporting progress through report (which may be nil).
// The returned Result carries the temporary file path whenever the file
// was created, even on error, so the caller can clean up.
func (e *Exporter) Export(ctx context.Context, filters map[string]interface{}, report ProgressFunc) (*Result, error) {
	total, err := e.store.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	tmpFile, err := os.CreateTemp(e.tmpDir, "surveys_*.xlsx")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrStreamWrite, err)
	}
	filePath := tmpFile.Name()
	tmpFile.Close()

	result := &Result{FilePath: filePath}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return result, fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}

	for i, col := range exportColumns {
		if err := sw.SetColWidth(i+1, i+1, col.width); err != nil {
			return result, fmt.Errorf("%w: %v", ErrStreamWrite, err)
		}
	}

	header := make([]interface{}, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col.header
	}
	if err := writeRow(sw, 1, header); err != nil {
		return result, err
	}

	cursor, err := e.store.Stream(ctx, filters)
	if err != nil {
		return result, fmt.Errorf("failed to open record cursor: %w", err)
	}
	defer cursor.Close(ctx)

	var written int64
	for cursor.Next(ctx) {
		var record models.SurveyRecord
		if err := cursor.Decode(&record); err != nil {
			return result, fmt.Errorf("failed to decode record: %w", err)
		}

		if err := writeRow(sw, int(written)+2, rowValues(&record)); err != nil {
			return result, err
		}
		written++

		// Progress is skipped entirely when the denominator is zero.
		if report != nil && total > 0 && written%progressRowInterval == 0 {
			percent := int(written * 100 / total)
			if percent > 99 {
				percent = 99
			}
			report(percent)
		}
	}
	if err := cursor.Err(); err != nil {
		return result, fmt.Errorf("record cursor failed: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return result, fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}
	if err := f.SaveAs(filePath); err != nil {
		return result, fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}

	result.TotalRows = written
	e.logger.WithFields(logrus.Fields{
		"rows": written,
		"file": filePath,
	}).Info("spreadsheet written")

	return result, nil
}

func writeRow(sw *excelize.StreamWriter, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}
	return nil
}
