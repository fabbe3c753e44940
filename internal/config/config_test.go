package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/cpetrack/internal/extract"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "disabled_tools:\n  - cpe_purge\n  - cpe_import\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("len(DisabledTools) = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "cpe_purge" || cfg.DisabledTools[1] != "cpe_import" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, "required_hours: 120\nallowed_paths: [/a]\nlog_level: warn\n")
	writeConfig(t, filepath.Join(repoRoot, ".cpetrack"), "required_hours: 40\nallowed_paths: [/a, /b]\n")

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.RequiredHours != 40 {
		t.Errorf("RequiredHours = %v, want 40 (repo wins)", cfg.RequiredHours)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (from global)", cfg.LogLevel)
	}
	if len(cfg.AllowedPaths) != 2 {
		t.Errorf("AllowedPaths = %v, want [/a /b]", cfg.AllowedPaths)
	}
	if cfg.AnnualMinimum != 20 {
		t.Errorf("AnnualMinimum = %v, want default 20", cfg.AnnualMinimum)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.RequiredHours != def.RequiredHours || cfg.ExtractPolicy != def.ExtractPolicy {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".cpetrack"), "extract_policy: lenient\n")

	nested := filepath.Join(repoRoot, "a", "b", "c")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.ExtractPolicy != "lenient" {
		t.Errorf("ExtractPolicy = %q, want lenient", cfg.ExtractPolicy)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig() = %q, want empty", got)
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{RequiredHours: 80, LogFormat: "json", MaxUploadBytes: 100}
	overlay := &Config{RequiredHours: 120}

	result := Merge(base, overlay)
	if result.RequiredHours != 120 {
		t.Errorf("RequiredHours = %v, want 120", result.RequiredHours)
	}
	if result.LogFormat != "json" || result.MaxUploadBytes != 100 {
		t.Errorf("base scalars not kept: %+v", result)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	if !Merge(&Config{AllowUnsafePaths: true}, &Config{}).AllowUnsafePaths {
		t.Error("AllowUnsafePaths should stay true from base")
	}
	if !Merge(&Config{}, &Config{AllowUnsafePaths: true}).AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true from overlay")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"cpe_purge", " cpe_import "}}
	overlay := &Config{DisabledTools: []string{"cpe_import", "", "cpe_export"}}

	got := Merge(base, overlay).DisabledTools
	want := []string{"cpe_purge", "cpe_import", "cpe_export"}
	if len(got) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if Merge(&Config{}, &Config{}).DisabledTools != nil {
		t.Error("empty merge should be nil")
	}
}

func TestPolicy(t *testing.T) {
	cfg := DefaultConfig()
	p, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if p.Mode != extract.ModeStrict || p.Vendor {
		t.Errorf("default policy = %+v, want strict/base", p)
	}

	cfg.ExtractPolicy = "lenient"
	cfg.ExtractPatterns = "base"
	cfg.FallbackLineMinLen = 20
	p, err = cfg.Policy()
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if p.Mode != extract.ModeLenient || p.Vendor || p.FallbackLineMinLen != 20 || p.DescriptionMinLen != 10 {
		t.Errorf("policy = %+v", p)
	}
}

func TestResolveInbox(t *testing.T) {
	cfg := &Config{InboxDir: "inbox"}
	if got := cfg.ResolveInbox("/data"); got != filepath.Join("/data", "inbox") {
		t.Errorf("ResolveInbox() = %q", got)
	}
	cfg.InboxDir = "/abs/inbox"
	if got := cfg.ResolveInbox("/data"); got != "/abs/inbox" {
		t.Errorf("ResolveInbox() = %q", got)
	}
}
