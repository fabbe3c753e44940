package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination describes the page a ListOutput holds.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

type ListInput struct {
	Year     int    // calendar year; 0 for all
	Category string // case-insensitive; empty for all
	Limit    int    // clamped to [1, MaxListLimit], 0 means DefaultListLimit
	Offset   int
}

type ListOutput struct {
	Items      []entry.Entry `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Sort       string        `json:"sort"`
}

// List pages through active entries, newest entry date first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	if input.Year < 0 || input.Year > 9999 {
		return nil, errors.NewInvalidRequest("year must be between 0 and 9999")
	}

	filter := db.ListFilter{
		Year:   input.Year,
		Limit:  DefaultListLimit,
		Offset: max(input.Offset, 0),
	}
	if input.Limit > 0 {
		filter.Limit = min(input.Limit, MaxListLimit)
	}
	if input.Category != "" {
		c, ok := entry.ParseCategory(input.Category)
		if !ok {
			return nil, errors.NewInvalidRequest("unknown category: " + input.Category)
		}
		filter.Category = c
	}

	items, err := db.List(ctx, database, filter)
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database, filter)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(items) < total,
			Total:   total,
		},
		Sort: "date_desc",
	}, nil
}
