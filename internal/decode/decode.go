// Package decode turns certificate files into raw text for extraction.
package decode

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/hpungsan/cpetrack/internal/errors"
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// Format identifies a supported input format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// Document is the text recovered from one input file.
type Document struct {
	Name   string `json:"name"`
	Format Format `json:"format"`
	Pages  int    `json:"pages"`
	Text   string `json:"-"`
}

// Decoder recovers text from raw document bytes. Implementations return
// *errors.CPEError values: DECODE_FAILED for unreadable input, CANCELLED when
// ctx ends first.
type Decoder interface {
	Decode(ctx context.Context, name string, data []byte) (*Document, error)
}

var pdfMagic = []byte("%PDF-")

// DetectFormat picks a format from content first, then file extension.
func DetectFormat(name string, data []byte) (Format, bool) {
	if bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return FormatPDF, true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF, true
	case ".txt", ".text", "":
		return FormatText, true
	}
	return "", false
}

// SupportedExt reports whether a file name has an extension Auto can decode.
func SupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".text":
		return true
	}
	return false
}

// Auto dispatches to the PDF or text decoder and enforces a size limit.
type Auto struct {
	MaxBytes int64
	PDF      Decoder
	Text     Decoder
}

// New returns an Auto decoder. maxBytes <= 0 uses DefaultMaxBytes.
func New(maxBytes int64) *Auto {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Auto{
		MaxBytes: maxBytes,
		PDF:      PDF{},
		Text:     Text{},
	}
}

// Decode implements Decoder.
func (a *Auto) Decode(ctx context.Context, name string, data []byte) (*Document, error) {
	if a.MaxBytes > 0 && int64(len(data)) > a.MaxBytes {
		return nil, errors.NewFileTooLarge(a.MaxBytes, int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errors.NewDecodeFailed(name, errEmpty)
	}

	format, ok := DetectFormat(name, data)
	if !ok {
		return nil, errors.NewDecodeFailed(name, errUnsupported)
	}
	if format == FormatPDF {
		return a.PDF.Decode(ctx, name, data)
	}
	return a.Text.Decode(ctx, name, data)
}
