// Package inbox watches a directory for certificate files and ingests them.
//
// Files dropped into the inbox are decoded, extracted and stored as certificate
// entries. Afterwards each file is moved into processed/ or failed/. A failed
// certificate whose text could be read keeps a ".raw.txt" sidecar with that text
// so the fields can be entered by hand.
package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/decode"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/ops"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	// SidecarSuffix is appended to a failed file's name for its raw text.
	SidecarSuffix = ".raw.txt"

	// DefaultDebounce coalesces the write bursts of a file being copied in.
	DefaultDebounce = 500 * time.Millisecond
)

// Status of a processed inbox file.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Ingester stores a certificate file as an entry. *ops.Extraction satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, database *sql.DB, cfg *config.Config, input ops.IngestInput) (*ops.IngestOutput, error)
}

// Result describes what happened to one inbox file.
type Result struct {
	File    string `json:"file"`
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	MovedTo string `json:"moved_to"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Watcher ingests certificate files that appear in Dir.
type Watcher struct {
	Dir      string
	DB       *sql.DB
	Config   *config.Config
	Ingester Ingester
	Debounce time.Duration
	Logger   *logging.Logger

	// OnResult, if set, is called after every file is handled.
	OnResult func(Result)
}

// New creates a Watcher with the default debounce.
func New(dir string, database *sql.DB, cfg *config.Config, ing Ingester, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		Dir:      dir,
		DB:       database,
		Config:   cfg,
		Ingester: ing,
		Debounce: DefaultDebounce,
		Logger:   log.Named("inbox"),
	}
}

// Prepare creates the inbox and its processed/ and failed/ subdirectories.
func (w *Watcher) Prepare() error {
	if w.Dir == "" {
		return errors.NewInvalidRequest("inbox directory is not configured")
	}
	for _, d := range []string{w.Dir, filepath.Join(w.Dir, ProcessedDir), filepath.Join(w.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return fmt.Errorf("create inbox dir %s: %w", d, err)
		}
	}
	return nil
}

// Scan handles every certificate file already sitting in the inbox, in name order.
func (w *Watcher) Scan(ctx context.Context) ([]Result, error) {
	if err := w.Prepare(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.Type().IsRegular() && candidate(de.Name()) {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if res, ok := w.Process(ctx, filepath.Join(w.Dir, name)); ok {
			results = append(results, res)
		}
	}
	return results, nil
}

// Run scans the inbox once, then watches it until ctx is cancelled.
// Subdirectories are not watched.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.Scan(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	w.Logger.Info(ctx, "watching inbox", zap.String("dir", w.Dir), zap.Duration("debounce", w.Debounce))

	ready := make(chan string, 64)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info(ctx, "inbox watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.Dir) || !candidate(ev.Name) {
				continue
			}
			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Reset(w.Debounce)
				continue
			}
			pending[path] = time.AfterFunc(w.Debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(pending, path)
			w.Process(ctx, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// Process ingests one file and moves it out of the inbox. ok is false when
// there was nothing to do: the file is gone or ctx was cancelled mid-ingest.
func (w *Watcher) Process(ctx context.Context, path string) (res Result, ok bool) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Result{}, false
	}

	name := filepath.Base(path)
	res = Result{File: name}

	out, ingestErr := w.Ingester.Ingest(ctx, w.DB, w.Config, ops.IngestInput{Path: path})
	if ingestErr != nil && (errors.Is(ingestErr, errors.ErrCancelled) || ctx.Err() != nil) {
		return Result{}, false
	}

	if ingestErr == nil {
		res.Status = StatusProcessed
		res.ID = out.ID
		res.MovedTo, err = moveInto(path, filepath.Join(w.Dir, ProcessedDir))
	} else {
		res.Status = StatusFailed
		res.Error = ingestErr.Error()
		if cErr, ok := errors.As(ingestErr); ok {
			res.Code = string(cErr.Code)
		}
		res.MovedTo, err = moveInto(path, filepath.Join(w.Dir, FailedDir))
		if err == nil {
			err = writeSidecar(res.MovedTo, ingestErr)
		}
	}
	if err != nil {
		w.Logger.Error(ctx, "inbox move failed", zap.String("file", name), zap.Error(err))
		res.Status = StatusFailed
		res.Error = err.Error()
	}

	fields := []zap.Field{zap.String("file", name), zap.String("status", res.Status)}
	if ingestErr != nil {
		fields = append(fields, zap.String("code", res.Code))
		w.Logger.Warn(ctx, "inbox file rejected", append(fields, zap.Error(ingestErr))...)
	} else {
		w.Logger.Info(ctx, "inbox file ingested", append(fields, zap.String("id", res.ID))...)
	}

	if w.OnResult != nil {
		w.OnResult(res)
	}
	return res, true
}

// candidate reports whether name is a decodable, non-hidden file.
func candidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, SidecarSuffix) {
		return false
	}
	return decode.SupportedExt(base)
}

// moveInto renames path into dir, picking a free name on collision.
func moveInto(path, dir string) (string, error) {
	dest := freeName(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func freeName(dir, name string) string {
	dest := filepath.Join(dir, name)
	if _, err := os.Lstat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Lstat(dest); os.IsNotExist(err) {
			return dest
		}
	}
}

// writeSidecar saves the decoded text of an EXTRACTION_FAILED file next to it.
func writeSidecar(movedTo string, ingestErr error) error {
	cErr, ok := errors.As(ingestErr)
	if !ok || cErr.Code != errors.ErrExtractionFailed {
		return nil
	}
	raw, _ := cErr.Details["raw_text"].(string)
	return os.WriteFile(movedTo+SidecarSuffix, []byte(raw), 0600)
}
