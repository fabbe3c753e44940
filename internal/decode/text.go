package decode

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/cpetrack/internal/errors"
)

var (
	errEmpty       = stderrors.New("file is empty")
	errUnsupported = stderrors.New("unsupported file type (want .pdf or .txt)")
	errNotUTF8     = stderrors.New("text is not valid UTF-8")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text passes plain-text certificates through with line endings normalized.
type Text struct{}

// Decode implements Decoder.
func (Text) Decode(ctx context.Context, name string, data []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("decode")
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errors.NewDecodeFailed(name, errNotUTF8)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return &Document{
		Name:   name,
		Format: FormatText,
		Pages:  1,
		Text:   text,
	}, nil
}
