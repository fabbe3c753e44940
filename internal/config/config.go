package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hpungsan/cpetrack/internal/extract"
)

// FileName is the config file looked up in the global and repo directories.
const FileName = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. CPETRACK_REQUIRED_HOURS.
const EnvPrefix = "CPETRACK_"

// Config holds application configuration.
type Config struct {
	// RequiredHours is the CPE total required per two-year reporting period.
	RequiredHours float64 `koanf:"required_hours"`

	// AnnualMinimum is the minimum hours required in each calendar year.
	AnnualMinimum float64 `koanf:"annual_minimum"`

	// DescriptionMaxChars caps user-entered descriptions.
	DescriptionMaxChars int `koanf:"description_max_chars"`

	// ExtractPolicy selects the certificate acceptance rule: strict or lenient.
	ExtractPolicy string `koanf:"extract_policy"`

	// ExtractPatterns selects pattern sets: base or vendor. Empty keeps the policy default.
	ExtractPatterns string `koanf:"extract_patterns"`

	// DescriptionMinLen and FallbackLineMinLen override the policy's description
	// thresholds when non-zero.
	DescriptionMinLen  int `koanf:"description_min_len"`
	FallbackLineMinLen int `koanf:"fallback_line_min_len"`

	// MaxUploadBytes bounds certificate files accepted for extraction.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// InboxDir is the directory watched by "cpetrack watch".
	// Relative paths are resolved against the data directory.
	InboxDir string `koanf:"inbox_dir"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.cpetrack/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `koanf:"allowed_paths"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `koanf:"allow_unsafe_paths"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `koanf:"db_max_idle_conns"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `koanf:"disabled_tools"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequiredHours:       80,
		AnnualMinimum:       20,
		DescriptionMaxChars: 500,
		ExtractPolicy:       string(extract.ModeStrict),
		MaxUploadBytes:      10 * 1024 * 1024,
		InboxDir:            "inbox",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Load loads configuration from baseDir/config.yaml and the environment.
// Missing files yield defaults.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, FileName))
	if err != nil {
		return nil, err
	}
	return applyEnv(Merge(DefaultConfig(), cfg))
}

// LoadWithRepo loads configuration from both global (~/.cpetrack) and repo (.cpetrack) directories.
// Repo config is found by walking upward from startDir to find the nearest .cpetrack/config.yaml.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment variables are applied last.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, FileName))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return applyEnv(Merge(Merge(DefaultConfig(), global), repo))
}

// FindRepoConfig walks upward from startDir to find the nearest .cpetrack/config.yaml.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".cpetrack", FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific YAML file.
// Returns zero-valued config if the path is empty or the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	cfg := &Config{}
	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// applyEnv overlays CPETRACK_* variables onto cfg.
// CPETRACK_REQUIRED_HOURS maps to required_hours (flat keys).
func applyEnv(cfg *Config) (*Config, error) {
	k := koanf.New(".")
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at use time.
func (c *Config) Validate() error {
	if c.RequiredHours <= 0 {
		return errors.New("required_hours must be positive")
	}
	if c.AnnualMinimum < 0 {
		return errors.New("annual_minimum must not be negative")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the extraction policy described by the config.
func (c *Config) Policy() (extract.Policy, error) {
	p, err := extract.ParsePolicy(c.ExtractPolicy, c.ExtractPatterns)
	if err != nil {
		return extract.Policy{}, err
	}
	if c.DescriptionMinLen > 0 {
		p.DescriptionMinLen = c.DescriptionMinLen
	}
	if c.FallbackLineMinLen > 0 {
		p.FallbackLineMinLen = c.FallbackLineMinLen
	}
	return p, nil
}

// ResolveInbox returns the inbox directory, resolving relative paths against baseDir.
func (c *Config) ResolveInbox(baseDir string) string {
	if c.InboxDir == "" || filepath.IsAbs(c.InboxDir) {
		return c.InboxDir
	}
	return filepath.Join(baseDir, c.InboxDir)
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		RequiredHours:       pick(overlay.RequiredHours, base.RequiredHours),
		AnnualMinimum:       pick(overlay.AnnualMinimum, base.AnnualMinimum),
		DescriptionMaxChars: pick(overlay.DescriptionMaxChars, base.DescriptionMaxChars),
		ExtractPolicy:       pick(overlay.ExtractPolicy, base.ExtractPolicy),
		ExtractPatterns:     pick(overlay.ExtractPatterns, base.ExtractPatterns),
		DescriptionMinLen:   pick(overlay.DescriptionMinLen, base.DescriptionMinLen),
		FallbackLineMinLen:  pick(overlay.FallbackLineMinLen, base.FallbackLineMinLen),
		MaxUploadBytes:      pick(overlay.MaxUploadBytes, base.MaxUploadBytes),
		InboxDir:            pick(overlay.InboxDir, base.InboxDir),
		DBMaxOpenConns:      pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:      pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		LogLevel:            pick(overlay.LogLevel, base.LogLevel),
		LogFormat:           pick(overlay.LogFormat, base.LogFormat),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
