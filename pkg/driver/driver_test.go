package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"routines/runtime-go/pkg/parser"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/store"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const weatherManifest = `
skill: weather
routines:
  - name: forecast
    description: Forecast for a city
    params: [city]
    source: |
      report = fetch_forecast(city=city)
      return report
  - name: daily
    params: city, days
    file: programs/daily.py
  - name: shout
    skill: util
    source: "return 'HI'\n"
`

func TestLoadManifestRegistersRoutines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "programs", "daily.py"), "x = forecast(city)\nreturn [x, days]\n")
	writeFile(t, filepath.Join(dir, ManifestFileName), weatherManifest)

	manifest, err := LoadManifest(filepath.Join(dir, ManifestFileName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(manifest.Routines) != 3 {
		t.Fatalf("expected 3 routines, got %d", len(manifest.Routines))
	}
	daily := manifest.Routines[1]
	if daily.Skill != "weather" || len(daily.Params) != 2 || daily.Params[1] != "days" {
		t.Fatalf("unexpected daily routine %#v", daily)
	}

	reg := registry.New()
	if err := manifest.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	var names []string
	for _, r := range reg.List() {
		names = append(names, r.QualifiedName())
	}
	if strings.Join(names, ",") != "util.shout,weather.daily,weather.forecast" {
		t.Fatalf("unexpected routines %v", names)
	}
	r, err := reg.Get("weather.daily")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Kind != registry.KindProgram || !strings.Contains(r.Source, "forecast(city)") {
		t.Fatalf("unexpected registered routine %#v", r)
	}
	if r.Origin != filepath.Join(dir, "programs", "daily.py") {
		t.Fatalf("unexpected origin %s", r.Origin)
	}
}

func TestLoadManifestValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		issue    string
	}{
		{"no routines", "skill: x\nroutines: []\n", "at least one routine"},
		{"missing name", "routines:\n  - source: \"return 1\"\n", "missing name"},
		{"bad name", "routines:\n  - name: a-b\n    source: \"return 1\"\n", "must be an identifier"},
		{"no body", "routines:\n  - name: a\n", "one of source or file"},
		{"both bodies", "routines:\n  - name: a\n    source: \"return 1\"\n    file: a.py\n", "mutually exclusive"},
		{"duplicate", "routines:\n  - name: a\n    source: \"return 1\"\n  - name: a\n    source: \"return 2\"\n", "duplicates"},
		{"duplicate param", "routines:\n  - name: a\n    params: [x, x]\n    source: \"return 1\"\n", "duplicate parameter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ManifestFileName)
			writeFile(t, path, tc.contents)
			_, err := LoadManifest(path)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(verr.Error(), tc.issue) {
				t.Fatalf("expected issue containing %q, got %v", tc.issue, verr)
			}
		})
	}
}

func TestLoadManifestRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFileName)
	writeFile(t, path, "routines:\n  - name: a\n    source: \"return 1\"\n    body: nope\n")
	if _, err := LoadManifest(path); err == nil || !strings.Contains(err.Error(), "body") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestRegisterReportsSyntaxErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFileName)
	writeFile(t, path, "routines:\n  - name: good\n    source: \"return 1\\n\"\n  - name: bad\n    source: \"import os\\n\"\n")
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	results := manifest.Check()
	if results[0].Err != nil {
		t.Fatalf("expected good routine to load, got %v", results[0].Err)
	}
	var syntaxErr *parser.SyntaxError
	if !errors.As(results[1].Err, &syntaxErr) {
		t.Fatalf("expected syntax error for bad routine, got %v", results[1].Err)
	}

	reg := registry.New()
	if err := manifest.Register(reg); err == nil {
		t.Fatalf("expected Register to fail")
	}
	if len(reg.List()) != 0 {
		t.Fatalf("expected nothing registered after a failed load")
	}
}

func TestLoadConfigResolvesPathsAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `
store:
  backend: sqlite
log:
  level: debug
manifests: [skills/routines.yml]
sources:
  - name: shared
    git: https://example.com/shared.git
    tag: v1.0.0
`)
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Backend != store.BackendSQLite || cfg.Store.Path != filepath.Join(dir, ".routines", "state.db") {
		t.Fatalf("unexpected store config %#v", cfg.Store)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != DefaultLogFormat {
		t.Fatalf("unexpected log config %#v", cfg.Log)
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Fatalf("expected default step budget, got %d", cfg.MaxSteps)
	}
	if len(cfg.Manifests) != 1 || cfg.Manifests[0] != filepath.Join(dir, "skills", "routines.yml") {
		t.Fatalf("unexpected manifests %v", cfg.Manifests)
	}
	if cfg.Sources[0].Manifest != ManifestFileName {
		t.Fatalf("expected default source manifest, got %q", cfg.Sources[0].Manifest)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		issue    string
	}{
		{"backend", "store:\n  backend: redis\n", "store.backend"},
		{"format", "log:\n  format: xml\n", "log.format"},
		{"steps", "max_steps: -1\n", "max_steps"},
		{"source ref", "sources:\n  - name: a\n    git: x\n", "exactly one of rev, tag or branch"},
		{"source manifest", "sources:\n  - name: a\n    git: x\n    tag: v1\n    manifest: ../escape.yml\n", "inside the repository"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			writeFile(t, path, tc.contents)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tc.issue) {
				t.Fatalf("expected issue containing %q, got %v", tc.issue, err)
			}
		})
	}
}

func TestLoadConfigOrDefaultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestFileName), "routines:\n  - name: a\n    source: \"return 1\\n\"\n")
	cfg, err := LoadConfigOrDefault(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault: %v", err)
	}
	if cfg.Store.Backend != store.BackendFile {
		t.Fatalf("expected file backend by default, got %s", cfg.Store.Backend)
	}
	if len(cfg.Manifests) != 1 || cfg.Manifests[0] != filepath.Join(dir, ManifestFileName) {
		t.Fatalf("expected local manifest to be picked up, got %v", cfg.Manifests)
	}
}

func initGitRepo(t *testing.T, dir string, files map[string]string) (*git.Repository, string) {
	t.Helper()
	for name, contents := range files {
		writeFile(t, filepath.Join(dir, name), contents)
	}
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	for name := range files {
		if _, err := worktree.Add(name); err != nil {
			t.Fatalf("stage %s: %v", name, err)
		}
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Routines",
			Email: "routines@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return repo, hash.String()
}

func TestFetcherChecksOutTaggedSource(t *testing.T) {
	remote := t.TempDir()
	repo, commit := initGitRepo(t, remote, map[string]string{
		ManifestFileName: "skill: shared\nroutines:\n  - name: greet\n    params: [who]\n    source: \"return 'hi ' + who\\n\"\n",
	})
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if _, err := repo.CreateTag("v1.0.0", head.Hash(), nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), "sources:\n  - name: shared\n    git: "+remote+"\n    tag: v1.0.0\n")
	cfg, err := LoadConfig(filepath.Join(root, ConfigFileName))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if err := LoadRegistry(cfg, registry.New()); err == nil || !strings.Contains(err.Error(), "not been fetched") {
		t.Fatalf("expected unfetched source error, got %v", err)
	}

	fetcher := NewFetcher(cfg.CacheDir, zerolog.Nop())
	lock, err := fetcher.FetchAll(context.Background(), cfg.Sources)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	locked := lock.Find("shared")
	if locked == nil || locked.Commit != commit {
		t.Fatalf("expected shared locked at %s, got %#v", commit, locked)
	}
	if !strings.HasPrefix(locked.Version, "v1.0.0@") {
		t.Fatalf("unexpected pinned version %s", locked.Version)
	}

	reloaded, err := LoadSourceLock(filepath.Join(cfg.CacheDir, LockFileName))
	if err != nil {
		t.Fatalf("LoadSourceLock: %v", err)
	}
	if got := reloaded.Find("shared"); got == nil || got.Dir != locked.Dir {
		t.Fatalf("lock did not round trip: %#v", got)
	}

	reg := registry.New()
	if err := LoadRegistry(cfg, reg); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if _, err := reg.Get("shared.greet"); err != nil {
		t.Fatalf("expected shared.greet registered: %v", err)
	}

	again, err := fetcher.Fetch(context.Background(), cfg.Sources[0])
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if again.Dir != locked.Dir {
		t.Fatalf("expected checkout reuse, got %s and %s", again.Dir, locked.Dir)
	}
}

func TestFetcherRejectsUnknownRevision(t *testing.T) {
	remote := t.TempDir()
	initGitRepo(t, remote, map[string]string{ManifestFileName: "routines: []\n"})
	fetcher := NewFetcher(t.TempDir(), zerolog.Nop())
	_, err := fetcher.Fetch(context.Background(), &SourceSpec{Name: "x", Git: remote, Tag: "missing", Manifest: ManifestFileName})
	if err == nil || !strings.Contains(err.Error(), "resolve revision missing") {
		t.Fatalf("expected resolve error, got %v", err)
	}
}

func TestSanitizePathSegment(t *testing.T) {
	cases := map[string]string{
		"":         "head",
		"v1.0.0":   "v1.0.0",
		"feat/x y": "feat_x_y",
		"..":       "head",
	}
	for in, want := range cases {
		if got := sanitizePathSegment(in); got != want {
			t.Fatalf("sanitizePathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
