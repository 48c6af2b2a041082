package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"routines/runtime-go/pkg/store"
)

// ConfigFileName is the runtime configuration looked up by the CLI.
const ConfigFileName = "runtime.yml"

// Config represents the parsed contents of runtime.yml. Relative paths are
// resolved against the directory holding the file.
type Config struct {
	Path      string
	Store     StoreConfig
	Log       LogConfig
	MaxSteps  int
	CacheDir  string
	Manifests []string
	Sources   []*SourceSpec
}

// StoreConfig selects the frame store backend.
type StoreConfig struct {
	Backend string
	Path    string
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string
	Format string
}

// SourceSpec is a git repository that contributes a routines manifest.
type SourceSpec struct {
	Name     string
	Git      string
	Rev      string
	Tag      string
	Branch   string
	Manifest string
}

// Default values applied to missing configuration fields.
const (
	DefaultMaxSteps  = 100_000
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
	DefaultCacheDir  = ".routines/cache"
	defaultStoreFile = ".routines/state"
)

// DefaultConfig returns the configuration used when no runtime.yml exists,
// rooted at dir.
func DefaultConfig(dir string) *Config {
	cfg := &Config{Path: filepath.Join(dir, ConfigFileName)}
	cfg.applyDefaults(dir)
	return cfg
}

// LoadConfig parses runtime.yml from disk.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw configFile
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	cfg := raw.toConfig(absPath)
	cfg.applyDefaults(filepath.Dir(absPath))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to defaults
// rooted at its directory otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("config: resolve %s: %w", path, err)
		}
		return DefaultConfig(filepath.Dir(absPath)), nil
	}
	return LoadConfig(path)
}

func (c *Config) applyDefaults(dir string) {
	if c.Store.Backend == "" {
		c.Store.Backend = store.BackendFile
	}
	if c.Store.Path == "" && c.Store.Backend != store.BackendMemory {
		c.Store.Path = defaultStoreFile
		if c.Store.Backend == store.BackendSQLite {
			c.Store.Path += ".db"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if len(c.Manifests) == 0 {
		if _, err := os.Stat(filepath.Join(dir, ManifestFileName)); err == nil {
			c.Manifests = []string{ManifestFileName}
		}
	}

	c.Store.Path = resolvePath(dir, c.Store.Path)
	c.CacheDir = resolvePath(dir, c.CacheDir)
	for i, m := range c.Manifests {
		c.Manifests[i] = resolvePath(dir, m)
	}
	for _, src := range c.Sources {
		if src.Manifest == "" {
			src.Manifest = ManifestFileName
		}
	}
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, filepath.FromSlash(path))
}

func (c *Config) validate() error {
	var errs ValidationError
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendFile, store.BackendSQLite:
	default:
		errs.Issues = append(errs.Issues, fmt.Sprintf("store.backend %q must be memory, file or sqlite", c.Store.Backend))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs.Issues = append(errs.Issues, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	if c.MaxSteps < 0 {
		errs.Issues = append(errs.Issues, "max_steps must not be negative")
	}
	names := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		label := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			errs.Issues = append(errs.Issues, label+" missing name")
		} else {
			label = fmt.Sprintf("source %q", src.Name)
			if names[src.Name] {
				errs.Issues = append(errs.Issues, label+" declared twice")
			}
			names[src.Name] = true
		}
		if src.Git == "" {
			errs.Issues = append(errs.Issues, label+" missing git url")
		}
		set := 0
		for _, v := range []string{src.Rev, src.Tag, src.Branch} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			errs.Issues = append(errs.Issues, label+" requires exactly one of rev, tag or branch")
		}
		if filepath.IsAbs(src.Manifest) || strings.Contains(filepath.ToSlash(src.Manifest), "..") {
			errs.Issues = append(errs.Issues, label+" manifest must be a path inside the repository")
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

type configFile struct {
	Store     storeSection    `yaml:"store"`
	Log       logSection      `yaml:"log"`
	MaxSteps  int             `yaml:"max_steps"`
	CacheDir  string          `yaml:"cache_dir"`
	Manifests stringList      `yaml:"manifests"`
	Sources   []sourceSection `yaml:"sources"`
}

type storeSection struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type logSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type sourceSection struct {
	Name     string `yaml:"name"`
	Git      string `yaml:"git"`
	Rev      string `yaml:"rev"`
	Tag      string `yaml:"tag"`
	Branch   string `yaml:"branch"`
	Manifest string `yaml:"manifest"`
}

func (cf configFile) toConfig(path string) *Config {
	cfg := &Config{
		Path: path,
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(cf.Store.Backend)),
			Path:    strings.TrimSpace(cf.Store.Path),
		},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(cf.Log.Level)),
			Format: strings.ToLower(strings.TrimSpace(cf.Log.Format)),
		},
		MaxSteps:  cf.MaxSteps,
		CacheDir:  strings.TrimSpace(cf.CacheDir),
		Manifests: cf.Manifests.Clone(),
	}
	for _, src := range cf.Sources {
		cfg.Sources = append(cfg.Sources, &SourceSpec{
			Name:     strings.TrimSpace(src.Name),
			Git:      strings.TrimSpace(src.Git),
			Rev:      strings.TrimSpace(src.Rev),
			Tag:      strings.TrimSpace(src.Tag),
			Branch:   strings.TrimSpace(src.Branch),
			Manifest: strings.TrimSpace(src.Manifest),
		})
	}
	return cfg
}
