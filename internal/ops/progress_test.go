package ops

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/entry"
)

func TestReportingYear(t *testing.T) {
	tests := []struct {
		year int
		want int
	}{
		{2025, 2025},
		{2026, 2027},
		{2027, 2027},
		{2000, 2001},
	}
	for _, tc := range tests {
		got := ReportingYear(time.Date(tc.year, time.June, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, tc.want, got, "ReportingYear(%d)", tc.year)
	}
}

func TestProgress_Totals(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	mustAdd(t, database, "2026-02-01", 10, "Ethics", "A")
	mustAdd(t, database, "2026-03-01", 12.5, "Technical", "B")
	mustAdd(t, database, "2027-01-15", 4, "Technical", "C")
	mustAdd(t, database, "2024-05-05", 3, "Business", "Old")
	deleted := mustAdd(t, database, "2026-04-01", 50, "Other", "Gone")
	_, err := Delete(ctx, database, DeleteInput{ID: deleted.ID})
	require.NoError(t, err)

	out, err := Progress(ctx, database, config.DefaultConfig(), ProgressInput{
		Now: time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 2027, out.ReportingYear)
	assert.Equal(t, 29.5, out.TotalHours)
	assert.InDelta(t, 36.88, out.PercentComplete, 0.01)
	assert.Equal(t, 50.5, out.HoursRemaining)
	assert.Equal(t, 4, out.EntryCount)

	require.Len(t, out.Years, 2)
	assert.Equal(t, YearProgress{Year: 2026, Hours: 22.5, NeedsMore: false, Shortfall: 0}, out.Years[0])
	assert.Equal(t, YearProgress{Year: 2027, Hours: 4, NeedsMore: true, Shortfall: 16}, out.Years[1])

	assert.Equal(t, []CategoryTotal{
		{Category: entry.CategoryEthics, Hours: 10, Entries: 1},
		{Category: entry.CategoryTechnical, Hours: 16.5, Entries: 2},
		{Category: entry.CategoryBusiness, Hours: 3, Entries: 1},
	}, out.Categories)
}

func TestProgress_CapsAndEmpty(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	out, err := Progress(ctx, database, cfg, ProgressInput{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.TotalHours)
	assert.Equal(t, 80.0, out.HoursRemaining)
	assert.Empty(t, out.Categories)
	assert.True(t, out.Years[0].NeedsMore)

	mustAdd(t, database, "2025-01-01", 100, "Technical", "Marathon")
	out, err = Progress(ctx, database, cfg, ProgressInput{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.PercentComplete)
	assert.Equal(t, 0.0, out.HoursRemaining)
}

func TestReport_Markdown(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	mustAdd(t, database, "2025-02-01", 2, "Ethics", "Ethics | Independence")
	mustAdd(t, database, "2025-06-01", 1.5, "Technical", "Lease accounting")

	out, err := Report(ctx, database, config.DefaultConfig(), ReportInput{
		Now: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	md := out.Markdown
	assert.Contains(t, md, "# CPE Progress Report")
	assert.Contains(t, md, "Reporting period 2024-2025")
	assert.Contains(t, md, "**Total:** 3.5 / 80 hours")
	assert.Contains(t, md, "**2025:** 3.5 hours (needs 16.5 more)")
	assert.Contains(t, md, `Ethics \| Independence`)
	assert.Less(t, strings.Index(md, "2025-06-01"), strings.Index(md, "2025-02-01"), "entries should be newest first")
	assert.Equal(t, 3.5, out.Progress.TotalHours)
}

func TestReport_NoEntries(t *testing.T) {
	database := setupTestDB(t)

	out, err := Report(context.Background(), database, config.DefaultConfig(), ReportInput{})
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "No entries recorded.")
	assert.NotContains(t, out.Markdown, "## By category")
}
