package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/extract"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/metrics"
)

const certText = "Certificate of Completion\nCourse: Revenue Recognition Deep Dive\nDecember 4, 2025\n8 CPE credits"

func newTestExtraction(t *testing.T) (*Extraction, *metrics.Manager, *logging.TestLogger) {
	t.Helper()
	m := metrics.New()
	log := logging.NewTestLogger()
	x, err := NewExtraction(config.DefaultConfig(), m, log.Logger)
	require.NoError(t, err)
	return x, m, log
}

func TestNewExtraction_InvalidPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExtractPolicy = "fuzzy"

	_, err := NewExtraction(cfg, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestExtractText_Accepted(t *testing.T) {
	x, m, log := newTestExtraction(t)

	out, err := x.ExtractText(context.Background(), ExtractTextInput{Text: certText, Explain: true})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, "2025-12-04", out.Fields.Date)
	assert.Equal(t, 8.0, out.Fields.Hours)
	assert.Equal(t, "strict", out.Policy)
	assert.Equal(t, extract.PatternsBase, out.Patterns)
	assert.Empty(t, out.RawText)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, "month_long", out.Analysis.Trace.DateRule)

	expected := `
# HELP cpetrack_extractions_total Certificate extractions by outcome.
# TYPE cpetrack_extractions_total counter
cpetrack_extractions_total{outcome="accepted",policy="strict"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "cpetrack_extractions_total"))
	log.AssertLogged(t, zapcore.InfoLevel, "extraction finished")
	log.AssertField(t, "extraction finished", "outcome", "accepted")
}

func TestExtractText_RejectedReturnsRawText(t *testing.T) {
	x, _, _ := newTestExtraction(t)

	text := "Thank you for attending our webinar."
	out, err := x.ExtractText(context.Background(), ExtractTextInput{Text: text})
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Nil(t, out.Fields)
	assert.Nil(t, out.Analysis)
	assert.Equal(t, text, out.RawText)
}

func TestExtractText_Errors(t *testing.T) {
	x, _, _ := newTestExtraction(t)

	_, err := x.ExtractText(context.Background(), ExtractTextInput{Text: "  \n"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = x.ExtractText(ctx, ExtractTextInput{Text: certText})
	assert.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
}

func TestExtractText_TooLarge(t *testing.T) {
	x, _, _ := newTestExtraction(t)
	x.MaxBytes = int64(len(certText)) - 1

	_, err := x.ExtractText(context.Background(), ExtractTextInput{Text: certText})
	require.True(t, errors.Is(err, errors.ErrFileTooLarge), "got %v", err)
	cErr, _ := errors.As(err)
	assert.Equal(t, int64(len(certText)), cErr.Details["actual_bytes"])

	x.MaxBytes = int64(len(certText))
	out, err := x.ExtractText(context.Background(), ExtractTextInput{Text: certText})
	require.NoError(t, err)
	assert.True(t, out.Found)
}

func TestExtractText_WithPolicy(t *testing.T) {
	x, _, _ := newTestExtraction(t)

	// Hours only: strict rejects, lenient fills in a date.
	text := "Total: 3 CPE hours"
	out, err := x.ExtractText(context.Background(), ExtractTextInput{Text: text})
	require.NoError(t, err)
	assert.False(t, out.Found)

	out, err = x.WithPolicy(extract.LenientPolicy()).ExtractText(context.Background(), ExtractTextInput{Text: text})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, 3.0, out.Fields.Hours)
	assert.NotEmpty(t, out.Fields.Date)
	assert.Equal(t, "lenient", out.Policy)
}

func TestForMode(t *testing.T) {
	x, _, _ := newTestExtraction(t)
	cfg := config.DefaultConfig()

	same, err := x.ForMode(cfg, "")
	require.NoError(t, err)
	assert.Same(t, x, same)

	lenient, err := x.ForMode(cfg, "lenient")
	require.NoError(t, err)
	assert.Equal(t, extract.ModeLenient, lenient.Extractor.Policy().Mode)
	assert.Equal(t, extract.ModeStrict, x.Extractor.Policy().Mode, "original is untouched")

	_, err = x.ForMode(cfg, "fuzzy")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestExtractFile_FromPath(t *testing.T) {
	x, _, _ := newTestExtraction(t)
	path := filepath.Join(t.TempDir(), "cert.txt")
	require.NoError(t, os.WriteFile(path, []byte(certText), 0600))

	out, err := x.ExtractFile(context.Background(), ExtractFileInput{Path: path})
	require.NoError(t, err)
	require.NotNil(t, out.Document)
	assert.Equal(t, "cert.txt", out.Document.Name)
	assert.Equal(t, "2025-12-04", out.Fields.Date)
}

func TestExtractFile_ExtractionFailedCarriesRawText(t *testing.T) {
	x, m, _ := newTestExtraction(t)

	out, err := x.ExtractFile(context.Background(), ExtractFileInput{Name: "note.txt", Data: []byte("nothing useful here")})
	require.Error(t, err)
	cErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrExtractionFailed, cErr.Code)
	assert.Equal(t, "nothing useful here", cErr.Details["raw_text"])
	require.NotNil(t, out)
	assert.Equal(t, "note.txt", out.Document.Name)

	expected := `
# HELP cpetrack_extractions_total Certificate extractions by outcome.
# TYPE cpetrack_extractions_total counter
cpetrack_extractions_total{outcome="rejected",policy="strict"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "cpetrack_extractions_total"))
}

func TestExtractFile_DecodeFailed(t *testing.T) {
	x, m, log := newTestExtraction(t)

	_, err := x.ExtractFile(context.Background(), ExtractFileInput{Name: "broken.pdf", Data: []byte("%PDF-1.4 garbage")})
	assert.True(t, errors.Is(err, errors.ErrDecodeFailed), "got %v", err)
	expected := `
# HELP cpetrack_extractions_total Certificate extractions by outcome.
# TYPE cpetrack_extractions_total counter
cpetrack_extractions_total{outcome="decode_error",policy="strict"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "cpetrack_extractions_total"))
	log.AssertLogged(t, zapcore.WarnLevel, "decode failed")
}

func TestExtractFile_InputErrors(t *testing.T) {
	x, _, _ := newTestExtraction(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := x.ExtractFile(ctx, ExtractFileInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "empty input: %v", err)

	_, err = x.ExtractFile(ctx, ExtractFileInput{Path: filepath.Join(dir, "missing.pdf")})
	assert.True(t, errors.Is(err, errors.ErrFileNotFound), "missing file: %v", err)

	_, err = x.ExtractFile(ctx, ExtractFileInput{Path: dir})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "directory: %v", err)

	x.MaxBytes = 4
	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, []byte(certText), 0600))
	_, err = x.ExtractFile(ctx, ExtractFileInput{Path: big})
	assert.True(t, errors.Is(err, errors.ErrFileTooLarge), "too large: %v", err)
}

func TestIngest_StoresCertificateEntry(t *testing.T) {
	database := setupTestDB(t)
	x, m, _ := newTestExtraction(t)

	out, err := x.Ingest(context.Background(), database, config.DefaultConfig(), IngestInput{
		Name: "revrec.txt",
		Data: []byte(certText),
	})
	require.NoError(t, err)
	require.NotNil(t, out.Extracted)
	assert.Equal(t, "revrec.txt", out.File)

	got, err := Get(context.Background(), database, GetInput{ID: out.ID})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-04", got.Date)
	assert.Equal(t, 8.0, got.Hours)
	assert.Equal(t, entry.SourceCertificate, got.Source)
	require.NotNil(t, got.SourceFile)
	assert.Equal(t, "revrec.txt", *got.SourceFile)

	expected := `
# HELP cpetrack_entries_added_total Entries stored, by source.
# TYPE cpetrack_entries_added_total counter
cpetrack_entries_added_total{source="certificate"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "cpetrack_entries_added_total"))
}

func TestIngest_OverridesWin(t *testing.T) {
	database := setupTestDB(t)
	x, _, _ := newTestExtraction(t)

	out, err := x.Ingest(context.Background(), database, config.DefaultConfig(), IngestInput{
		Name:        "revrec.txt",
		Data:        []byte(certText),
		Hours:       ptr(6.5),
		Category:    ptr("Business"),
		Description: ptr("Revenue recognition update"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-04", out.Entry.Date)
	assert.Equal(t, 6.5, out.Entry.Hours)
	assert.Equal(t, entry.CategoryBusiness, out.Entry.Category)
	assert.Equal(t, "Revenue recognition update", out.Entry.Description)
}

func TestIngest_ExtractionFailed(t *testing.T) {
	database := setupTestDB(t)
	x, _, _ := newTestExtraction(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()
	data := []byte("Thanks for joining us")

	_, err := x.Ingest(ctx, database, cfg, IngestInput{Name: "thanks.txt", Data: data})
	assert.True(t, errors.Is(err, errors.ErrExtractionFailed), "got %v", err)

	// Date and hours overrides are enough to store it anyway.
	out, err := x.Ingest(ctx, database, cfg, IngestInput{
		Name:  "thanks.txt",
		Data:  data,
		Date:  ptr("2025-01-15"),
		Hours: ptr(2.0),
	})
	require.NoError(t, err)
	assert.Nil(t, out.Extracted)
	assert.Equal(t, entry.CategoryTechnical, out.Entry.Category)
	assert.Equal(t, extract.PlaceholderDescription, out.Entry.Description)
	assert.Equal(t, "thanks.txt", out.File)
}
