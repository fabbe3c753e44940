package ops

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
)

// ProgressInput contains parameters for the Progress operation.
type ProgressInput struct {
	Now time.Time // zero = time.Now()
}

// YearProgress is one calendar year of the reporting period.
type YearProgress struct {
	Year      int     `json:"year"`
	Hours     float64 `json:"hours"`
	NeedsMore bool    `json:"needs_more"`
	Shortfall float64 `json:"shortfall"`
}

// CategoryTotal sums active hours in one category.
type CategoryTotal struct {
	Category entry.Category `json:"category"`
	Hours    float64        `json:"hours"`
	Entries  int            `json:"entries"`
}

// ProgressOutput summarizes progress toward the reporting requirement.
type ProgressOutput struct {
	RequiredHours   float64         `json:"required_hours"`
	AnnualMinimum   float64         `json:"annual_minimum"`
	ReportingYear   int             `json:"reporting_year"`
	TotalHours      float64         `json:"total_hours"`
	PercentComplete float64         `json:"percent_complete"`
	HoursRemaining  float64         `json:"hours_remaining"`
	Years           []YearProgress  `json:"years"`
	Categories      []CategoryTotal `json:"categories"`
	EntryCount      int             `json:"entry_count"`
}

// ReportingYear returns the year a two-year reporting period ends in:
// the current year when odd, otherwise the next year.
func ReportingYear(now time.Time) int {
	y := now.Year()
	if y%2 == 0 {
		return y + 1
	}
	return y
}

// Progress computes dashboard totals over all active entries.
func Progress(ctx context.Context, database *sql.DB, cfg *config.Config, input ProgressInput) (*ProgressOutput, error) {
	entries, err := db.ListAll(ctx, database, false)
	if err != nil {
		return nil, err
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	return summarize(entries, cfg.RequiredHours, cfg.AnnualMinimum, ReportingYear(now)), nil
}

func summarize(entries []entry.Entry, required, annual float64, reportingYear int) *ProgressOutput {
	out := &ProgressOutput{
		RequiredHours: required,
		AnnualMinimum: annual,
		ReportingYear: reportingYear,
		EntryCount:    len(entries),
	}

	byYear := map[int]float64{}
	byCat := map[entry.Category]*CategoryTotal{}
	for i := range entries {
		e := &entries[i]
		out.TotalHours += e.Hours
		byYear[e.Year()] += e.Hours
		ct, ok := byCat[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			byCat[e.Category] = ct
		}
		ct.Hours += e.Hours
		ct.Entries++
	}

	out.TotalHours = round2(out.TotalHours)
	if required > 0 {
		out.PercentComplete = round2(math.Min(out.TotalHours/required*100, 100))
	}
	out.HoursRemaining = round2(math.Max(required-out.TotalHours, 0))

	for _, y := range []int{reportingYear - 1, reportingYear} {
		hours := round2(byYear[y])
		out.Years = append(out.Years, YearProgress{
			Year:      y,
			Hours:     hours,
			NeedsMore: hours < annual,
			Shortfall: round2(math.Max(annual-hours, 0)),
		})
	}

	for _, c := range entry.Categories {
		if ct, ok := byCat[c]; ok {
			ct.Hours = round2(ct.Hours)
			out.Categories = append(out.Categories, *ct)
		}
	}
	if out.Categories == nil {
		out.Categories = []CategoryTotal{}
	}

	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
