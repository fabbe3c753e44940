package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/decode"
	"github.com/hpungsan/cpetrack/internal/errors"
)

// DataDirName is the per-user data directory under $HOME.
const DataDirName = ".cpetrack"

// PathCheckMode selects which files a path may name and where they may live.
type PathCheckMode int

const (
	PathCheckRead        PathCheckMode = iota // import source: existing .jsonl
	PathCheckWrite                            // export target: .jsonl or .xlsx
	PathCheckCertificate                      // certificate named by an agent: existing .pdf or .txt
)

type pathRule struct {
	allowExt  func(name string) bool
	extHint   string
	mustExist bool
	homeDir   string // default allowed directory under the data dir
}

var pathRules = map[PathCheckMode]pathRule{
	PathCheckRead: {
		allowExt:  hasExt(".jsonl"),
		extHint:   "import path must have a .jsonl extension",
		mustExist: true,
		homeDir:   "exports",
	},
	PathCheckWrite: {
		allowExt: hasExt(".jsonl", ".xlsx"),
		extHint:  "path must have a .jsonl or .xlsx extension",
		homeDir:  "exports",
	},
	PathCheckCertificate: {
		allowExt:  decode.SupportedExt,
		extHint:   "certificate must be a .pdf or .txt file",
		mustExist: true,
		homeDir:   "inbox",
	},
}

func hasExt(exts ...string) func(string) bool {
	return func(name string) bool {
		return slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
	}
}

// ValidatePath checks a path supplied to import, export or an agent tool.
// The file must carry an extension the mode accepts, contain no ".."
// component, and must not be a symlink. Unless allow_unsafe_paths is set it
// must also sit directly in the mode's default directory under ~/.cpetrack or
// in an allowed_paths entry. Subdirectories are refused so no intermediate
// component can be swapped between this check and the O_NOFOLLOW open.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	rule, ok := pathRules[mode]
	if !ok {
		return errors.NewInternal(fmt.Errorf("unknown path check mode %d", mode))
	}
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	if !rule.allowExt(abs) {
		return errors.NewInvalidRequest(rule.extHint)
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		dirs, err := allowedDirs(cfg, rule.homeDir)
		if err != nil {
			return err
		}
		parent := filepath.Dir(abs)
		if !slices.Contains(dirs, parent) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if rule.mustExist {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// allowedDirs returns ~/.cpetrack/<sub> plus the absolute allowed_paths
// entries, each cleaned and with a symlinked entry resolved to its target.
func allowedDirs(cfg *config.Config, sub string) ([]string, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{filepath.Join(dataDir, sub)}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, p)
			}
		}
	}

	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = filepath.Clean(d)
		if isSymlink(d) {
			resolved, err := filepath.EvalSymlinks(d)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			d = resolved
		}
		out = append(out, d)
	}
	return out, nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, DataDirName), nil
}

// DefaultExportsDir returns ~/.cpetrack/exports.
func DefaultExportsDir() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exports"), nil
}

// containsTraversal reports whether any component of path is "..". Both
// slash styles are split so Windows-style input is caught everywhere.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	return slices.Contains(parts, "..")
}

var filenameReplacer = strings.NewReplacer("/", "-", `\`, "-", "..", "-")

// SanitizeForFilename makes s safe as a single file name component.
func SanitizeForFilename(s string) string {
	s = filenameReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
