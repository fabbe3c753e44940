package ops

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any bad record or ID collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on ID collision
	ImportModeRename  ImportMode = "rename"  // assign a new ID on collision
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required, .jsonl
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents a problem with one line of the import file.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const maxImportLine = 1 << 20

//go:embed schema/entry.schema.json
var recordSchemaJSON []byte

var recordSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("entry.schema.json", bytes.NewReader(recordSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("entry.schema.json")
})

type importRecord struct {
	line   int
	record entry.ExportRecord
}

// Import loads entries from a JSONL export file inside one transaction.
// In error mode nothing is written unless every record is valid and new.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openNoFollow(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors, err := parseExportFile(file)
	if err != nil {
		return nil, err
	}

	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	out := &ImportOutput{Errors: parseErrors, Skipped: len(parseErrors)}
	for _, r := range records {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}

		e := r.record.ToEntry()
		exists, err := db.Exists(ctx, tx, e.ID)
		if err != nil {
			return nil, err
		}

		switch {
		case !exists:
			err = db.Insert(ctx, tx, e)
		case input.Mode == ImportModeError:
			return &ImportOutput{Errors: []ImportError{{
				Line:    r.line,
				ID:      e.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("entry with id %q already exists", e.ID),
			}}}, nil
		case input.Mode == ImportModeReplace:
			err = db.ReplaceByID(ctx, tx, e)
		default:
			e.ID, err = newID()
			if err == nil {
				e.UpdatedAt = time.Now().Unix()
				err = db.Insert(ctx, tx, e)
			}
		}
		if err != nil {
			return nil, err
		}
		out.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	return out, nil
}

// parseExportFile reads JSONL records, skipping the header line. Each record
// is checked against the export schema and for a real calendar date.
func parseExportFile(r io.Reader) ([]importRecord, []ImportError, error) {
	schema, err := recordSchema()
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}

	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw any
		if err := json.Unmarshal(line, &raw); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		var record entry.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid record: %v", err),
			})
			continue
		}
		if record.CPEExport {
			continue
		}

		if err := schema.Validate(raw); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: schemaMessage(err),
			})
			continue
		}
		if !entry.ValidDate(record.Date) {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: fmt.Sprintf("date %q is not a calendar date", record.Date),
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, record: record})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum + 1,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors, nil
}

// schemaMessage flattens a validation error to its most specific cause.
func schemaMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "record"
	}
	return fmt.Sprintf("%s: %s", loc, ve.Message)
}
