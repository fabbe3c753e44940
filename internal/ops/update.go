package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	ID string

	// Editable fields (nil = don't change)
	Date        *string
	Hours       *float64
	Category    *string
	Description *string
	SourceFile  *string
}

// UpdateOutput contains the result of the Update operation.
type UpdateOutput struct {
	ID    string       `json:"id"`
	Entry *entry.Entry `json:"entry"`
}

// Update modifies an existing active entry. The merged result is validated
// as a whole, so a partial update can't leave the entry invalid.
func Update(ctx context.Context, database *sql.DB, cfg *config.Config, input UpdateInput) (*UpdateOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if input.Date == nil && input.Hours == nil && input.Category == nil &&
		input.Description == nil && input.SourceFile == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	e, err := db.GetByID(ctx, database, id, false)
	if err != nil {
		return nil, err
	}

	if input.Date != nil {
		e.Date = strings.TrimSpace(*input.Date)
	}
	if input.Hours != nil {
		e.Hours = *input.Hours
	}
	category := string(e.Category)
	if input.Category != nil {
		category = *input.Category
	}
	if input.Description != nil {
		e.Description = *input.Description
	}
	if input.SourceFile != nil {
		e.SourceFile = optionalString(strings.TrimSpace(*input.SourceFile))
	}

	result := entry.Validate(entry.ValidateInput{
		Date:                e.Date,
		Hours:               e.Hours,
		Category:            category,
		Description:         e.Description,
		DescriptionMaxChars: cfg.DescriptionMaxChars,
	})
	if !result.Valid {
		return nil, errors.NewInvalidRequest(strings.Join(result.Problems, "; "))
	}
	e.Category = result.Category
	e.Description = entry.NormalizeDescription(e.Description)

	if err := db.UpdateByID(ctx, database, e); err != nil {
		return nil, err
	}

	return &UpdateOutput{ID: e.ID, Entry: e}, nil
}
