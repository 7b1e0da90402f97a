// Package exporter writes the finished report: the Excel workbook the
// operations team consumes, an optional CSV mirror, and the per-column
// diagnostics report that shows at a glance which sources went missing.
package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"agentcli/internal/tabular"
)

// SheetName is the workbook sheet the report lands on.
const SheetName = "DailyAgentData"

// writeAttempts bounds the retry loop when the target file is locked by an
// open Excel window; later attempts switch to a timestamped backup name.
const writeAttempts = 3

// ErrWriteConflict means every write attempt failed, including the
// backup-named ones.
var ErrWriteConflict = errors.New("output file could not be written")

// ExcelWriter writes report rows to a workbook.
type ExcelWriter struct {
	logger *slog.Logger
}

func NewExcelWriter(logger *slog.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger}
}

// Write saves the rows under the given column order. When the target path
// cannot be written (typically the file is open in Excel), it retries under
// a timestamped backup name and returns the path actually written.
func (w *ExcelWriter) Write(path string, columns []string, rows []tabular.Row) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	target := path
	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			target = backupPath(path)
			w.logger.Warn("output file busy, retrying with backup name",
				slog.String("path", target), slog.Int("attempt", attempt+1))
		}
		if err := w.writeWorkbook(target, columns, rows); err != nil {
			lastErr = err
			continue
		}
		w.logger.Info("report written",
			slog.String("path", target),
			slog.Int("rows", len(rows)),
			slog.Int("columns", len(columns)))
		return target, nil
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrWriteConflict, writeAttempts, lastErr)
}

func (w *ExcelWriter) writeWorkbook(path string, columns []string, rows []tabular.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}

	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = row[col]
		}
		if err := setRow(f, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to build cell reference: %w", err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}

func backupPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_backup_%s%s", base, time.Now().Format("20060102_150405"), ext)
}
