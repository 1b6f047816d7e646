// Package export renders schedule logs as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"leecher/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	LogsSheet    = "Logs"
	SummarySheet = "Summary"
)

var logHeaders = []string{"Created at", "Project", "Result", "Queue item", "Log id"}

// resultColors заливка ячейки результата
var resultColors = map[models.BatchResult]string{
	models.BatchOK:                  "#C6EFCE",
	models.BatchFailure:             "#FFC7CE",
	models.BatchWrongProjectName:    "#FFEB9C",
	models.BatchNoShotgridHierarchy: "#FFEB9C",
}

// WriteLogs writes logs, one row each in the given order, plus a per-result summary.
func WriteLogs(w io.Writer, logs []*models.ScheduleLog) error {
	f, err := build(logs)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveLogs stores the workbook under dir and returns the file path.
func SaveLogs(dir string, logs []*models.ScheduleLog, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := build(logs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, fmt.Sprintf("schedule_logs_%s.xlsx", now.Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func build(logs []*models.ScheduleLog) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(LogsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	header, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range logHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(LogsSheet, cell, h)
		_ = f.SetCellStyle(LogsSheet, cell, cell, header)
	}

	styles := make(map[models.BatchResult]int, len(resultColors))
	for result, color := range resultColors {
		styles[result], _ = f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
	}

	tally := make(map[models.BatchResult]int)
	for i, l := range logs {
		row := i + 2
		values := []interface{}{
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.ProjectName,
			l.BatchResult.String(),
			l.QueueItemID,
			l.ID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(LogsSheet, cell, v)
		}
		if style, ok := styles[l.BatchResult]; ok {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(LogsSheet, cell, cell, style)
		}
		tally[l.BatchResult]++
	}

	_ = f.SetColWidth(LogsSheet, "A", "A", 24)
	_ = f.SetColWidth(LogsSheet, "B", "C", 28)
	_ = f.SetColWidth(LogsSheet, "D", "E", 40)

	_ = f.SetCellValue(SummarySheet, "A1", "Result")
	_ = f.SetCellValue(SummarySheet, "B1", "Count")
	_ = f.SetCellStyle(SummarySheet, "A1", "B1", header)
	for i, result := range models.BatchResults() {
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+2), result.String())
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+2), tally[result])
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 28)

	return f, nil
}
