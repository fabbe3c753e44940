package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// ExportSchemaVersion is written to the JSONL header line.
const ExportSchemaVersion = "1.0"

// ExportFormat selects the export file type.
type ExportFormat string

const (
	ExportJSONL ExportFormat = "jsonl"
	ExportXLSX  ExportFormat = "xlsx"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path           string       // optional, default: ~/.cpetrack/exports/entries-<timestamp>.<format>
	Format         ExportFormat // optional, inferred from Path, default jsonl
	IncludeDeleted bool         // jsonl only
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string       `json:"path"`
	Format     ExportFormat `json:"format"`
	Count      int          `json:"count"`
	ExportedAt int64        `json:"exported_at"`
}

// ExportHeader represents the header line in a JSONL export file.
type ExportHeader struct {
	CPEExport     bool   `json:"_cpetrack_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// Export writes entries to a JSONL or XLSX file. The file is written to a
// temp name and renamed into place, so an existing export survives a failure.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	format, err := resolveExportFormat(input.Path, input.Format)
	if err != nil {
		return nil, err
	}
	if format == ExportXLSX && input.IncludeDeleted {
		return nil, errors.NewInvalidRequest("include_deleted is only supported for jsonl exports")
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(format, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths are validated too.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	entries, err := db.ListAll(ctx, database, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	err = writeAtomic(exportPath, func(w io.Writer) error {
		if format == ExportXLSX {
			p := summarize(entries, cfg.RequiredHours, cfg.AnnualMinimum, ReportingYear(now))
			return WriteXLSX(w, entries, p)
		}
		return writeJSONL(ctx, w, entries, now.Unix())
	})
	if err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Count:      len(entries),
		ExportedAt: now.Unix(),
	}, nil
}

func resolveExportFormat(path string, format ExportFormat) (ExportFormat, error) {
	ext := ExportFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	switch {
	case format == "" && path == "":
		return ExportJSONL, nil
	case format == "":
		format = ext
	case path != "" && ext != format:
		return "", errors.NewInvalidRequest(fmt.Sprintf("path extension does not match format %q", format))
	}
	if format != ExportJSONL && format != ExportXLSX {
		return "", errors.NewInvalidRequest("format must be one of: jsonl, xlsx")
	}
	return format, nil
}

func writeJSONL(ctx context.Context, w io.Writer, entries []entry.Entry, exportedAt int64) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	header := ExportHeader{
		CPEExport:     true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    exportedAt,
	}
	if err := enc.Encode(header); err != nil {
		return errors.NewInternal(err)
	}

	for i := range entries {
		if ctx.Err() != nil {
			return errors.NewCancelled("export")
		}
		if err := enc.Encode(entry.ToExportRecord(&entries[i])); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// writeAtomic writes through a temp file in the destination directory and
// renames it over exportPath once write succeeds.
func writeAtomic(exportPath string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := createNoFollow(tempPath)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename; Windows refuses to rename open files.
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path must not be a symlink")
	}

	// Windows rename fails when the destination exists; keep the old file rather
	// than delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return errors.NewConflict("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath returns ~/.cpetrack/exports/entries-<timestamp>.<format>.
func defaultExportPath(format ExportFormat, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	name := SanitizeForFilename("entries-" + now.Format("2006-01-02T150405"))
	return filepath.Join(dir, name+"."+string(format)), nil
}
