package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mehmetkoksal-w/driftwatch/internal/jsonc"
	"github.com/mehmetkoksal-w/driftwatch/internal/validate"
	"github.com/mehmetkoksal-w/driftwatch/schemas"
)

// FileName is the project configuration file, read from the project
// root. Comments and trailing commas are allowed.
const FileName = "driftwatch.jsonc"

// Config is the project-level configuration.
type Config struct {
	Project          string   `json:"project,omitempty"`
	DBFileName       string   `json:"dbFileName,omitempty"`
	HistoryRetention int      `json:"historyRetention,omitempty"`
	Backups          int      `json:"backups,omitempty"`
	DebounceMs       int      `json:"debounceMs,omitempty"`
	SyncDomains      []string `json:"syncDomains,omitempty"`
	Ignore           []string `json:"ignore,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Project:          ".",
		DBFileName:       "drift.db",
		HistoryRetention: 90,
		Backups:          5,
		DebounceMs:       500,
		Ignore:           defaultIgnore(),
	}
}

// Load reads the configuration from root, validates it against the
// embedded schema, and fills defaults. A missing file yields defaults.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.Project = root
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	clean := jsonc.Clean(data)
	if err := validate.Bytes(clean, schemas.Config, path); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := jsonc.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Project == "" || cfg.Project == "." {
		cfg.Project = root
	}
	cfg.Ignore = mergeGlobs(defaultIgnore(), cfg.Ignore)
	return cfg, nil
}

// DriftDir is the storage root for this project.
func (c *Config) DriftDir() string {
	return filepath.Join(c.Project, ".drift")
}

// Debounce returns the autosave debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Ignored reports whether a project-relative path matches an ignore
// glob.
func (c *Config) Ignored(path string) bool {
	norm := filepath.ToSlash(path)
	for _, g := range c.Ignore {
		if ok, err := doublestar.Match(g, norm); err == nil && ok {
			return true
		}
	}
	return false
}

// EnsureLayout creates the .drift directory tree.
func EnsureLayout(root string) (string, error) {
	driftDir := filepath.Join(root, ".drift")
	dirs := []string{
		driftDir,
		filepath.Join(driftDir, "patterns"),
		filepath.Join(driftDir, "contracts"),
		filepath.Join(driftDir, "constraints"),
		filepath.Join(driftDir, "history", "snapshots"),
		filepath.Join(driftDir, ".backups"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", d, err)
		}
	}
	return driftDir, nil
}

func defaultIgnore() []string {
	return []string{
		".git/**",
		".drift/**",
		"node_modules/**",
		"vendor/**",
		"dist/**",
		"build/**",
		"coverage/**",
		"**/*.min.*",
		"**/*.lock",
		"**/*.generated.*",
	}
}

func mergeGlobs(defaults, user []string) []string {
	seen := make(map[string]struct{})
	var merged []string
	appendIfMissing := func(globs []string) {
		for _, g := range globs {
			norm := normalizeGlob(g)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			merged = append(merged, norm)
		}
	}
	appendIfMissing(defaults)
	appendIfMissing(user)
	return merged
}

func normalizeGlob(g string) string {
	trimmed := strings.TrimSpace(g)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	for strings.Contains(trimmed, "//") {
		trimmed = strings.ReplaceAll(trimmed, "//", "/")
	}
	return filepath.ToSlash(trimmed)
}
