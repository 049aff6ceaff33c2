// Package export renders a finished episode as a spreadsheet for the
// patient record. It consumes the episode read-only.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"resusboard/internal/models"
)

const (
	summarySheet = "Summary"
	logSheet     = "Episode Log"
)

// EpisodeWorkbook renders the episode into an xlsx workbook and returns
// the serialized bytes.
func EpisodeWorkbook(ep *models.Episode) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(logSheet); err != nil {
		return nil, fmt.Errorf("failed to create log sheet: %w", err)
	}

	if err := writeSummary(f, ep); err != nil {
		return nil, err
	}
	if err := writeLog(f, ep); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, ep *models.Episode) error {
	rows := [][]interface{}{
		{"Patient ID", ep.Log.PatientID},
		{"Started", formatInstant(ep.StartTime)},
		{"Ended", formatInstant(ep.End.EndTime)},
		{"Outcome", ep.End.Outcome},
		{"Duration", formatDuration(ep.Timers.ElapsedTime)},
		{"Adrenaline doses", ep.Counters.AdrenalineCount},
		{"Defibrillation shocks", ep.Counters.ShockCount},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return nil
}

func writeLog(f *excelize.File, ep *models.Episode) error {
	header := []interface{}{"Time", "Type", "Entry", "Important"}
	if err := f.SetSheetRow(logSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetRowStyle(logSheet, 1, 1, boldStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, entry := range ep.Log.Entries {
		important := ""
		if entry.IsImportant {
			important = "yes"
		}
		row := []interface{}{formatInstant(entry.Time), entry.Type, entry.Text, important}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(logSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write log row: %w", err)
		}
	}

	// Readable column widths for the text-heavy sheet
	if err := f.SetColWidth(logSheet, "A", "A", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(logSheet, "C", "C", 60); err != nil {
		return err
	}
	return nil
}

func formatInstant(unixMilli int64) string {
	if unixMilli == 0 {
		return ""
	}
	return time.UnixMilli(unixMilli).Format("2006-01-02 15:04:05")
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
