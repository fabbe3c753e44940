package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// Sheet names in XLSX exports.
const (
	SheetEntries = "Entries"
	SheetSummary = "Summary"
)

// Workbook writes the active entries as an XLSX workbook to w and returns
// how many were written. Unlike Export it touches no file.
func Workbook(ctx context.Context, database *sql.DB, cfg *config.Config, w io.Writer, now time.Time) (int, error) {
	entries, err := db.ListAll(ctx, database, false)
	if err != nil {
		return 0, err
	}
	p := summarize(entries, cfg.RequiredHours, cfg.AnnualMinimum, ReportingYear(now))
	if err := WriteXLSX(w, entries, p); err != nil {
		return 0, errors.NewInternal(err)
	}
	return len(entries), nil
}

// WriteXLSX writes entries (newest date first) and a progress summary as a workbook.
func WriteXLSX(w io.Writer, entries []entry.Entry, p *ProgressOutput) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetEntries); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b entry.Entry) int {
		return strings.Compare(b.Date, a.Date)
	})

	set := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	headers := []string{"Date", "Hours", "Category", "Description", "Source", "Source File"}
	for i, h := range headers {
		set(SheetEntries, i+1, 1, h)
	}
	for i, e := range sorted {
		row := i + 2
		set(SheetEntries, 1, row, e.Date)
		set(SheetEntries, 2, row, e.Hours)
		set(SheetEntries, 3, row, string(e.Category))
		set(SheetEntries, 4, row, e.Description)
		set(SheetEntries, 5, row, string(e.Source))
		if e.SourceFile != nil {
			set(SheetEntries, 6, row, *e.SourceFile)
		}
	}
	_ = f.SetColWidth(SheetEntries, "A", "A", 12)
	_ = f.SetColWidth(SheetEntries, "B", "B", 8)
	_ = f.SetColWidth(SheetEntries, "C", "C", 20)
	_ = f.SetColWidth(SheetEntries, "D", "D", 60)
	_ = f.SetColWidth(SheetEntries, "E", "F", 16)

	row := 1
	kv := func(k string, v any) {
		set(SheetSummary, 1, row, k)
		set(SheetSummary, 2, row, v)
		row++
	}
	kv("Reporting Year", p.ReportingYear)
	kv("Required Hours", p.RequiredHours)
	kv("Total Hours", p.TotalHours)
	kv("Percent Complete", p.PercentComplete)
	kv("Hours Remaining", p.HoursRemaining)
	for _, y := range p.Years {
		kv(fmt.Sprintf("%d Hours", y.Year), y.Hours)
	}
	row++
	kv("Category", "Hours")
	for _, c := range p.Categories {
		kv(string(c.Category), c.Hours)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 20)

	if idx, err := f.GetSheetIndex(SheetEntries); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
