package ops

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
)

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	Now time.Time // zero = time.Now()
}

// ReportOutput contains the rendered progress report.
type ReportOutput struct {
	Markdown string          `json:"markdown"`
	Progress *ProgressOutput `json:"progress"`
}

// Report renders progress and the entries of the reporting period as Markdown.
func Report(ctx context.Context, database *sql.DB, cfg *config.Config, input ReportInput) (*ReportOutput, error) {
	entries, err := db.ListAll(ctx, database, false)
	if err != nil {
		return nil, err
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	p := summarize(entries, cfg.RequiredHours, cfg.AnnualMinimum, ReportingYear(now))

	return &ReportOutput{
		Markdown: renderReport(p, entries, now),
		Progress: p,
	}, nil
}

func renderReport(p *ProgressOutput, entries []entry.Entry, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# CPE Progress Report\n\n")
	fmt.Fprintf(&b, "Reporting period %d-%d, generated %s.\n\n", p.ReportingYear-1, p.ReportingYear, now.Format(entry.DateLayout))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- **Total:** %s / %s hours (%s%%)\n", hrs(p.TotalHours), hrs(p.RequiredHours), hrs(p.PercentComplete))
	fmt.Fprintf(&b, "- **Remaining:** %s hours\n", hrs(p.HoursRemaining))
	for _, y := range p.Years {
		status := "minimum met"
		if y.NeedsMore {
			status = fmt.Sprintf("needs %s more", hrs(y.Shortfall))
		}
		fmt.Fprintf(&b, "- **%d:** %s hours (%s)\n", y.Year, hrs(y.Hours), status)
	}
	b.WriteString("\n")

	if len(p.Categories) > 0 {
		b.WriteString("## By category\n\n| Category | Hours | Entries |\n|---|---:|---:|\n")
		for _, c := range p.Categories {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", c.Category, hrs(c.Hours), c.Entries)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Entries\n\n")
	if len(entries) == 0 {
		b.WriteString("No entries recorded.\n")
		return b.String()
	}
	b.WriteString("| Date | Hours | Category | Description |\n|---|---:|---|---|\n")
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b entry.Entry) int {
		return strings.Compare(b.Date, a.Date)
	})
	for _, e := range sorted {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.Date, hrs(e.Hours), e.Category, escapeCell(e.Description))
	}
	return b.String()
}

// hrs formats hours without trailing zeros.
func hrs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
