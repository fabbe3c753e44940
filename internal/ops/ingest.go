package ops

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/extract"
)

// IngestInput contains parameters for the Ingest operation.
// Override fields, when set, win over extracted values.
type IngestInput struct {
	Path string
	Name string
	Data []byte

	Date        *string
	Hours       *float64
	Category    *string
	Description *string
}

// IngestOutput contains the result of the Ingest operation.
type IngestOutput struct {
	ID        string          `json:"id"`
	Entry     *entry.Entry    `json:"entry"`
	Extracted *extract.Fields `json:"extracted,omitempty"`
	File      string          `json:"file"`
}

// Ingest extracts a certificate and stores it as a certificate entry.
// When extraction finds nothing, the entry is still created if the overrides
// supply both date and hours; otherwise the EXTRACTION_FAILED error is returned.
func (x *Extraction) Ingest(ctx context.Context, database *sql.DB, cfg *config.Config, input IngestInput) (*IngestOutput, error) {
	res, err := x.ExtractFile(ctx, ExtractFileInput{Path: input.Path, Name: input.Name, Data: input.Data})
	if err != nil && !(errors.Is(err, errors.ErrExtractionFailed) && input.Date != nil && input.Hours != nil) {
		return nil, err
	}

	fields := extract.Fields{
		Category:    entry.CategoryTechnical,
		Description: extract.PlaceholderDescription,
	}
	var extracted *extract.Fields
	if res != nil && res.Fields != nil {
		extracted = res.Fields
		fields = *res.Fields
	}

	add := AddInput{
		Date:        fields.Date,
		Hours:       fields.Hours,
		Category:    string(fields.Category),
		Description: fields.Description,
		Source:      entry.SourceCertificate,
	}
	if res != nil && res.Document != nil {
		add.SourceFile = res.Document.Name
	}
	if input.Date != nil {
		add.Date = *input.Date
	}
	if input.Hours != nil {
		add.Hours = *input.Hours
	}
	if input.Category != nil {
		add.Category = *input.Category
	}
	if input.Description != nil {
		add.Description = *input.Description
	}

	out, err := Add(ctx, database, cfg, add)
	if err != nil {
		return nil, err
	}
	x.Metrics.RecordEntryAdded(string(entry.SourceCertificate))
	x.log().Info(ctx, "certificate ingested",
		zap.String("id", out.ID),
		zap.String("file", add.SourceFile),
		zap.Bool("extracted", extracted != nil),
	)

	return &IngestOutput{
		ID:        out.ID,
		Entry:     out.Entry,
		Extracted: extracted,
		File:      add.SourceFile,
	}, nil
}
