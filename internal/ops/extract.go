package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/decode"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/extract"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/metrics"
)

// Extraction bundles what certificate operations need: a decoder, an
// extractor, and optional instrumentation. Metrics and Logger may be nil.
type Extraction struct {
	Decoder   decode.Decoder
	Extractor *extract.Extractor
	MaxBytes  int64
	Metrics   *metrics.Manager
	Logger    *logging.Logger
}

// NewExtraction builds an Extraction from config.
func NewExtraction(cfg *config.Config, m *metrics.Manager, log *logging.Logger) (*Extraction, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Extraction{
		Decoder:   decode.New(cfg.MaxUploadBytes),
		Extractor: extract.New(policy),
		MaxBytes:  cfg.MaxUploadBytes,
		Metrics:   m,
		Logger:    log.Named("extract"),
	}, nil
}

// WithPolicy returns a copy of x that extracts with policy.
func (x *Extraction) WithPolicy(policy extract.Policy) *Extraction {
	cp := *x
	cp.Extractor = extract.New(policy)
	return &cp
}

// ForMode returns x unchanged when mode is empty, otherwise a copy extracting
// under mode with the rest of cfg's policy settings.
func (x *Extraction) ForMode(cfg *config.Config, mode string) (*Extraction, error) {
	if mode == "" {
		return x, nil
	}
	c := *cfg
	c.ExtractPolicy = mode
	policy, err := c.Policy()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return x.WithPolicy(policy), nil
}

// ExtractTextInput contains parameters for the ExtractText operation.
type ExtractTextInput struct {
	Text    string
	Explain bool // include per-field rule trace
}

// ExtractFileInput contains parameters for the ExtractFile operation.
// Data, when set, is used instead of reading Path; Name labels it.
type ExtractFileInput struct {
	Path    string
	Name    string
	Data    []byte
	Explain bool
}

// ExtractOutput contains the result of an extraction.
// RawText is set only when nothing usable was found.
type ExtractOutput struct {
	Found    bool              `json:"found"`
	Fields   *extract.Fields   `json:"fields,omitempty"`
	Policy   string            `json:"policy"`
	Patterns string            `json:"patterns"`
	Document *decode.Document  `json:"document,omitempty"`
	Analysis *extract.Analysis `json:"analysis,omitempty"`
	RawText  string            `json:"raw_text,omitempty"`
}

// ExtractText runs the extractor over already-decoded text. A miss is not an
// error: Found is false and RawText carries the input back.
func (x *Extraction) ExtractText(ctx context.Context, input ExtractTextInput) (*ExtractOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("extraction")
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	if n := int64(len(input.Text)); x.MaxBytes > 0 && n > x.MaxBytes {
		return nil, errors.NewFileTooLarge(x.MaxBytes, n)
	}

	start := time.Now()
	out := x.run(input.Text, input.Explain)
	x.record(ctx, "text", out, time.Since(start))
	return out, nil
}

// ExtractFile decodes a certificate and extracts its fields. Unreadable input
// is DECODE_FAILED; readable input with no usable fields is EXTRACTION_FAILED
// with the decoded text in Details["raw_text"].
func (x *Extraction) ExtractFile(ctx context.Context, input ExtractFileInput) (*ExtractOutput, error) {
	name, data, err := x.load(input)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	doc, err := x.Decoder.Decode(ctx, name, data)
	if err != nil {
		x.Metrics.RecordExtraction(metrics.OutcomeDecodeError, string(x.Extractor.Policy().Mode), time.Since(start))
		x.log().Warn(ctx, "decode failed", zap.String("file", name), zap.Error(err))
		return nil, err
	}

	out := x.run(doc.Text, input.Explain)
	out.Document = doc
	x.record(ctx, name, out, time.Since(start))

	if !out.Found {
		return out, errors.NewExtractionFailed(doc.Text)
	}
	return out, nil
}

func (x *Extraction) run(text string, explain bool) *ExtractOutput {
	policy := x.Extractor.Policy()
	a := x.Extractor.Analyze(text)
	fields := x.Extractor.Accept(a)

	out := &ExtractOutput{
		Found:    fields != nil,
		Fields:   fields,
		Policy:   string(policy.Mode),
		Patterns: policy.PatternSet(),
	}
	if explain {
		out.Analysis = &a
	}
	if fields == nil {
		out.RawText = text
	}
	return out
}

func (x *Extraction) record(ctx context.Context, name string, out *ExtractOutput, d time.Duration) {
	outcome := metrics.OutcomeAccepted
	if !out.Found {
		outcome = metrics.OutcomeRejected
	}
	x.Metrics.RecordExtraction(outcome, out.Policy, d)
	x.log().Info(ctx, "extraction finished",
		zap.String("file", name),
		zap.String("outcome", outcome),
		zap.String("policy", out.Policy),
		zap.Duration("duration", d),
	)
}

// load returns the bytes to decode, enforcing MaxBytes before reading a file.
func (x *Extraction) load(input ExtractFileInput) (string, []byte, error) {
	if input.Data != nil {
		name := input.Name
		if name == "" && input.Path != "" {
			name = filepath.Base(input.Path)
		}
		if name == "" {
			name = "upload"
		}
		return name, input.Data, nil
	}

	if input.Path == "" {
		return "", nil, errors.NewInvalidRequest("path is required")
	}
	info, err := os.Stat(input.Path)
	if os.IsNotExist(err) {
		return "", nil, errors.NewFileNotFound(input.Path)
	}
	if err != nil {
		return "", nil, errors.NewInternal(err)
	}
	if info.IsDir() {
		return "", nil, errors.NewInvalidRequest(fmt.Sprintf("%s is a directory", input.Path))
	}
	if x.MaxBytes > 0 && info.Size() > x.MaxBytes {
		return "", nil, errors.NewFileTooLarge(x.MaxBytes, info.Size())
	}

	f, err := openNoFollow(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", nil, err
		}
		return "", nil, errors.NewInternal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, info.Size()+1))
	if err != nil {
		return "", nil, errors.NewInternal(err)
	}
	name := input.Name
	if name == "" {
		name = filepath.Base(input.Path)
	}
	return name, data, nil
}

func (x *Extraction) log() *logging.Logger {
	if x.Logger == nil {
		return logging.Nop()
	}
	return x.Logger
}
