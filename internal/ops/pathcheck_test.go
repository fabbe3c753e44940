package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	for _, path := range []string{
		"../backup.jsonl",
		"../../etc/backup.jsonl",
		"/tmp/../etc/backup.jsonl",
		"/tmp/safe/../../../etc/entries.xlsx",
	} {
		t.Run(path, func(t *testing.T) {
			err := ValidatePath(path, PathCheckWrite, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected INVALID_REQUEST, got: %v", err)
			}
		})
	}
}

func TestValidatePath_Extension(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	tests := []struct {
		name string
		file string
		ok   bool
	}{
		{"jsonl", "backup.jsonl", true},
		{"xlsx", "entries.xlsx", true},
		{"upper case xlsx", "ENTRIES.XLSX", true},
		{"no extension", "backup", false},
		{"json", "backup.json", false},
		{"pdf", "cert.pdf", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(filepath.Join(tmpDir, tc.file), PathCheckWrite, cfg)
			if tc.ok && err != nil {
				t.Errorf("expected success, got: %v", err)
			}
			if !tc.ok && !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected INVALID_REQUEST, got: %v", err)
			}
		})
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()

	err := ValidatePath(filepath.Join(t.TempDir(), "backup.jsonl"), PathCheckWrite, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST outside the exports dir, got: %v", err)
	}
}

func TestValidatePath_DefaultExportsDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := config.DefaultConfig()

	dir, err := DefaultExportsDir()
	if err != nil {
		t.Fatalf("DefaultExportsDir failed: %v", err)
	}
	if dir != filepath.Join(home, DataDirName, "exports") {
		t.Errorf("DefaultExportsDir = %q", dir)
	}

	if err := ValidatePath(filepath.Join(dir, "out.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected exports dir to be allowed, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	inside := filepath.Join(allowed, "in.jsonl")
	if err := os.WriteFile(inside, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := ValidatePath(inside, PathCheckRead, cfg); err != nil {
		t.Errorf("expected success for path in allowed_paths, got: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "out.jsonl")
	if err := os.WriteFile(outside, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := ValidatePath(outside, PathCheckRead, cfg); err == nil {
		t.Error("expected error for path outside allowed_paths")
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	err := ValidatePath(filepath.Join(t.TempDir(), "missing.jsonl"), PathCheckRead, cfg)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected FILE_NOT_FOUND, got: %v", err)
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	allowed := t.TempDir()
	target := filepath.Join(t.TempDir(), "secret.jsonl")
	if err := os.WriteFile(target, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	link := filepath.Join(allowed, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	restricted := config.DefaultConfig()
	restricted.AllowedPaths = []string{allowed}
	unsafe := config.DefaultConfig()
	unsafe.AllowUnsafePaths = true

	for name, cfg := range map[string]*config.Config{"allowed_paths": restricted, "allow_unsafe_paths": unsafe} {
		for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
			if err := ValidatePath(link, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("%s mode %d: expected INVALID_REQUEST for symlink, got: %v", name, mode, err)
			}
		}
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	sub := filepath.Join(allowed, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	nested := filepath.Join(sub, "entries.jsonl")
	if err := os.WriteFile(nested, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := ValidatePath(nested, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected INVALID_REQUEST for nested path, got: %v", mode, err)
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/entries.jsonl", false},
		{"../entries.jsonl", true},
		{"/home/../etc/passwd", true},
		{"./entries.jsonl", false},
		{"entries..2024.jsonl", false},
	}

	for _, tc := range tests {
		if got := containsTraversal(tc.path); got != tc.contains {
			t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"entries-2024-01-02T150405", "entries-2024-01-02T150405"},
		{"path/to/file", "path-to-file"},
		{"../../../etc/passwd", "etc-passwd"},
		{"foo\x00bar", "foobar"},
		{"../../..", "unnamed"},
		{"a---b", "a-b"},
	}

	for _, tc := range tests {
		if got := SanitizeForFilename(tc.input); got != tc.expected {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestValidatePath_Certificate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := config.DefaultConfig()

	inbox := filepath.Join(home, DataDirName, "inbox")
	if err := os.MkdirAll(inbox, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, name := range []string{"cert.pdf", "cert.txt", "notes.jsonl"} {
		if err := os.WriteFile(filepath.Join(inbox, name), []byte("x"), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{"pdf in inbox", filepath.Join(inbox, "cert.pdf"), ""},
		{"txt in inbox", filepath.Join(inbox, "cert.txt"), ""},
		{"jsonl rejected", filepath.Join(inbox, "notes.jsonl"), errors.ErrInvalidRequest},
		{"missing", filepath.Join(inbox, "gone.pdf"), errors.ErrFileNotFound},
		{"outside inbox", filepath.Join(t.TempDir(), "cert.pdf"), errors.ErrInvalidRequest},
		{"exports dir is not for certificates", filepath.Join(home, DataDirName, "exports", "cert.pdf"), errors.ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckCertificate, cfg)
			if tc.code == "" {
				if err != nil {
					t.Errorf("expected success, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.code) {
				t.Errorf("expected %s, got: %v", tc.code, err)
			}
		})
	}
}

func TestValidatePath_UnknownMode(t *testing.T) {
	err := ValidatePath("/tmp/x.jsonl", PathCheckMode(99), config.DefaultConfig())
	if !errors.Is(err, errors.ErrInternal) {
		t.Errorf("expected INTERNAL, got: %v", err)
	}
}
