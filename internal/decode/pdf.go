package decode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hpungsan/cpetrack/internal/errors"
)

// PDF recovers text from PDF content streams using pdfcpu. Pages are kept in
// document order and joined with a newline.
type PDF struct{}

// Decode implements Decoder.
func (PDF) Decode(ctx context.Context, name string, data []byte) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, errors.NewDecodeFailed(name, fmt.Errorf("pdfcpu read: %w", err))
	}
	if pctx.PageCount == 0 {
		return nil, errors.NewDecodeFailed(name, fmt.Errorf("pdf has no pages"))
	}

	pages := make([]string, 0, pctx.PageCount)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("decode")
		}
		pages = append(pages, pageText(pctx, pageNr))
	}

	return &Document{
		Name:   name,
		Format: FormatPDF,
		Pages:  pctx.PageCount,
		Text:   strings.Join(pages, "\n"),
	}, nil
}

// pageText extracts text from a single page. Pages without a readable content
// stream contribute an empty string so page order is preserved.
func pageText(pctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromStream scans content stream operators for shown text.
// Tj and TJ append to the current line; ', T* and vertical Td/TD moves start
// a new one.
func textFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeStrings(&sb, line)

		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			writeStrings(&sb, line)

		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() == 0 {
				continue
			}
			if movesDown(line) {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}

		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanText(sb.String())
}

func writeStrings(sb *strings.Builder, line []byte) {
	for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
		sb.WriteString(decodePDFString(m[1]))
	}
}

// movesDown reports whether a "tx ty Td" operator has a non-zero ty.
func movesDown(line []byte) bool {
	fields := strings.Fields(string(line))
	if len(fields) < 3 {
		return false
	}
	ty, err := strconv.ParseFloat(fields[len(fields)-2], 64)
	return err == nil && ty != 0
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanText collapses horizontal whitespace, drops non-printable runes and
// empty lines, and keeps line breaks.
func cleanText(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			if unicode.IsSpace(r) {
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			} else if unicode.IsPrint(r) {
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
