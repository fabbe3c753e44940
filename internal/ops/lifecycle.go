package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// An entry is active until Delete or Clear stamps deleted_at. Deleted rows
// stay out of listings and progress, remain visible to Get with
// IncludeDeleted, and leave the database only through Purge.

type GetInput struct {
	ID             string
	IncludeDeleted bool
}

func Get(ctx context.Context, database *sql.DB, input GetInput) (*entry.Entry, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	return db.GetByID(ctx, database, id, input.IncludeDeleted)
}

type DeleteInput struct {
	ID string
}

type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes one active entry.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := db.SoftDelete(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

type ClearOutput struct {
	Cleared int    `json:"cleared"`
	Message string `json:"message"`
}

// Clear soft-deletes every active entry at once.
func Clear(ctx context.Context, database *sql.DB) (*ClearOutput, error) {
	n, err := db.SoftDeleteAll(ctx, database)
	if err != nil {
		return nil, err
	}
	out := &ClearOutput{Cleared: int(n), Message: "No entries to clear"}
	if n > 0 {
		out.Message = "Cleared " + pluralEntries(int(n)) + "; run purge to remove them permanently"
	}
	return out, nil
}

type PurgeInput struct {
	// OlderThanDays limits the purge to entries deleted at least that many
	// days ago. Nil purges every deleted entry.
	OlderThanDays *int
}

type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge hard-deletes soft-deleted entries.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	var cutoff int64
	if days := input.OlderThanDays; days != nil {
		if *days < 0 {
			return nil, errors.NewInvalidRequest("older_than_days must not be negative")
		}
		cutoff = time.Now().AddDate(0, 0, -*days).Unix()
	}

	n, err := db.PurgeDeleted(ctx, database, cutoff)
	if err != nil {
		return nil, err
	}

	out := &PurgeOutput{Purged: int(n), Message: "No deleted entries to purge"}
	if n > 0 {
		out.Message = "Permanently deleted " + pluralEntries(int(n))
		if input.OlderThanDays != nil {
			out.Message += fmt.Sprintf(" (deleted more than %d days ago)", *input.OlderThanDays)
		}
	}
	return out, nil
}

func requireID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

func pluralEntries(n int) string {
	if n == 1 {
		return "1 entry"
	}
	return fmt.Sprintf("%d entries", n)
}
