package ops

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

func exportConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}
	return cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestExport_JSONL(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	mustAdd(t, database, "2025-01-01", 1, "Ethics", "First")
	second := mustAdd(t, database, "2025-02-01", 2, "Technical", "Second")
	_, err := Delete(ctx, database, DeleteInput{ID: second.ID})
	require.NoError(t, err)

	path := filepath.Join(dir, "backup.jsonl")
	out, err := Export(ctx, database, exportConfig(dir), ExportInput{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, out.Path)
	assert.Equal(t, ExportJSONL, out.Format)
	assert.Equal(t, 1, out.Count)

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var header ExportHeader
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.True(t, header.CPEExport)
	assert.Equal(t, ExportSchemaVersion, header.SchemaVersion)
	assert.Equal(t, out.ExportedAt, header.ExportedAt)

	var rec entry.ExportRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "First", rec.Description)
	assert.Equal(t, "manual", rec.Source)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %o, want 600", info.Mode().Perm())
	}

	// include_deleted brings the soft-deleted row along
	out, err = Export(ctx, database, exportConfig(dir), ExportInput{Path: path, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Len(t, readLines(t, path), 3)

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Empty(t, matches, "temp files left behind")
}

func TestExport_XLSX(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	mustAdd(t, database, "2025-01-01", 1, "Ethics", "Older")
	mustAdd(t, database, "2025-03-01", 2.5, "Technical", "Newer")

	path := filepath.Join(dir, "entries.xlsx")
	out, err := Export(ctx, database, exportConfig(dir), ExportInput{Path: path})
	require.NoError(t, err)
	assert.Equal(t, ExportXLSX, out.Format)
	assert.Equal(t, 2, out.Count)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetEntries, SheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(SheetEntries)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Hours", "Category", "Description", "Source", "Source File"}, rows[0])
	assert.Equal(t, "2025-03-01", rows[1][0])
	assert.Equal(t, "2.5", rows[1][1])
	assert.Equal(t, "Newer", rows[1][3])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	require.NotEmpty(t, summary)
	assert.Equal(t, "Reporting Year", summary[0][0])
	found := false
	for _, r := range summary {
		if len(r) == 2 && r[0] == "Total Hours" {
			found = true
			assert.Equal(t, "3.5", r[1])
		}
	}
	assert.True(t, found, "summary sheet has no Total Hours row")
}

func TestExport_FormatValidation(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()
	cfg := exportConfig(dir)

	tests := []struct {
		name  string
		input ExportInput
	}{
		{"format mismatch", ExportInput{Path: filepath.Join(dir, "a.jsonl"), Format: ExportXLSX}},
		{"unknown format", ExportInput{Format: "csv"}},
		{"xlsx with deleted", ExportInput{Path: filepath.Join(dir, "a.xlsx"), IncludeDeleted: true}},
		{"wrong extension", ExportInput{Path: filepath.Join(dir, "a.csv")}},
		{"traversal", ExportInput{Path: dir + "/../a.jsonl"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Export(ctx, database, cfg, tc.input)
			assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestExport_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	database := setupTestDB(t)

	out, err := Export(context.Background(), database, config.DefaultConfig(), ExportInput{Format: ExportXLSX})
	require.NoError(t, err)

	dir := filepath.Join(home, DataDirName, "exports")
	assert.Equal(t, dir, filepath.Dir(out.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(out.Path), "entries-"))
	assert.Equal(t, ".xlsx", filepath.Ext(out.Path))
	_, err = os.Stat(out.Path)
	assert.NoError(t, err)
}

func TestWorkbook(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	mustAdd(t, database, "2025-01-01", 1, "Ethics", "Kept")
	gone := mustAdd(t, database, "2025-01-02", 1, "Ethics", "Gone")
	_, err := Delete(ctx, database, DeleteInput{ID: gone.ID})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Workbook(ctx, database, config.DefaultConfig(), &buf, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetEntries)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kept", rows[1][3])
}
