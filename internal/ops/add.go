package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// AddInput contains parameters for the Add operation.
type AddInput struct {
	Date        string       // required, YYYY-MM-DD
	Hours       float64      // required, > 0
	Category    string       // required, case-insensitive
	Description string       // required
	Source      entry.Source // default: manual
	SourceFile  string       // optional certificate file name
}

// AddOutput contains the result of the Add operation.
type AddOutput struct {
	ID    string       `json:"id"`
	Entry *entry.Entry `json:"entry"`
}

// Add validates and stores a new entry.
func Add(ctx context.Context, database *sql.DB, cfg *config.Config, input AddInput) (*AddOutput, error) {
	input.Date = strings.TrimSpace(input.Date)

	result := entry.Validate(entry.ValidateInput{
		Date:                input.Date,
		Hours:               input.Hours,
		Category:            input.Category,
		Description:         input.Description,
		DescriptionMaxChars: cfg.DescriptionMaxChars,
	})
	if !result.Valid {
		return nil, errors.NewInvalidRequest(strings.Join(result.Problems, "; "))
	}

	if input.Source == "" {
		input.Source = entry.SourceManual
	}
	switch input.Source {
	case entry.SourceManual, entry.SourceCertificate, entry.SourceImport:
	default:
		return nil, errors.NewInvalidRequest("source must be one of: manual, certificate, import")
	}

	id, err := newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()

	e := &entry.Entry{
		ID:          id,
		Date:        input.Date,
		Hours:       input.Hours,
		Category:    result.Category,
		Description: entry.NormalizeDescription(input.Description),
		Source:      input.Source,
		SourceFile:  optionalString(strings.TrimSpace(input.SourceFile)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := db.Insert(ctx, database, e); err != nil {
		return nil, err
	}

	return &AddOutput{ID: id, Entry: e}, nil
}

func newID() (string, error) {
	id, err := ulid.New(ulid.Now(), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// optionalString maps "" to nil.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
