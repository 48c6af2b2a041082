package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// LockFileName is stored inside the cache directory and pins every fetched
// source to a commit so later loads work offline.
const LockFileName = "sources.lock"

// SourceLock models the sources.lock contents.
type SourceLock struct {
	Path      string
	Generated string
	Sources   []*LockedSource
}

// LockedSource records where a source was checked out.
type LockedSource struct {
	Name     string
	Git      string
	Version  string
	Commit   string
	Dir      string
	Manifest string
}

// Find returns the entry for name.
func (l *SourceLock) Find(name string) *LockedSource {
	if l == nil {
		return nil
	}
	for _, src := range l.Sources {
		if src.Name == name {
			return src
		}
	}
	return nil
}

// ManifestPath is the absolute path of the locked source's manifest.
func (s *LockedSource) ManifestPath() string {
	return filepath.Join(s.Dir, filepath.FromSlash(s.Manifest))
}

// Fetcher clones git sources into a cache directory laid out as
// <cache>/<source>/<version>.
type Fetcher struct {
	CacheDir string
	Logger   zerolog.Logger
}

// NewFetcher returns a fetcher rooted at cacheDir.
func NewFetcher(cacheDir string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{CacheDir: cacheDir, Logger: logger}
}

// FetchAll checks out every source in cfg and rewrites the lock file.
func (f *Fetcher) FetchAll(ctx context.Context, sources []*SourceSpec) (*SourceLock, error) {
	lock := &SourceLock{Path: filepath.Join(f.CacheDir, LockFileName)}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		locked, err := f.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		lock.Sources = append(lock.Sources, locked)
	}
	if err := WriteSourceLock(lock, lock.Path); err != nil {
		return nil, err
	}
	return lock, nil
}

// Fetch checks out one source, reusing an existing checkout of the same version.
func (f *Fetcher) Fetch(ctx context.Context, src *SourceSpec) (*LockedSource, error) {
	baseDir := filepath.Join(f.CacheDir, sanitizePathSegment(src.Name))
	version, commit, err := f.ensureGitCheckout(ctx, baseDir, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	locked := &LockedSource{
		Name:     src.Name,
		Git:      src.Git,
		Version:  version,
		Commit:   commit,
		Dir:      filepath.Join(baseDir, sanitizePathSegment(version)),
		Manifest: filepath.ToSlash(src.Manifest),
	}
	if _, err := os.Stat(locked.ManifestPath()); err != nil {
		return nil, fmt.Errorf("fetch %s: manifest %s missing at %s", src.Name, src.Manifest, version)
	}
	f.Logger.Info().Str("source", src.Name).Str("version", version).Str("commit", commit).Msg("source fetched")
	return locked, nil
}

func (f *Fetcher) ensureGitCheckout(ctx context.Context, baseDir string, src *SourceSpec) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", err
	}

	revisions, descriptor, err := gitRevisionsFromSpec(src)
	if err != nil {
		return "", "", err
	}

	if src.Rev != "" {
		existing := filepath.Join(baseDir, sanitizePathSegment(src.Rev))
		if _, err := os.Stat(existing); err == nil {
			return src.Rev, src.Rev, nil
		}
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", "", err
	}

	repo, err := git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:               src.Git,
		Tags:              git.AllTags,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git clone %s: %w", src.Git, err)
	}

	var hash *plumbing.Hash
	for _, revision := range revisions {
		if hash, err = repo.ResolveRevision(revision); err == nil {
			break
		}
	}
	if hash == nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("resolve revision %s: %w", descriptor, err)
	}

	version := gitPinnedVersion(descriptor, hash.String())
	targetDir := filepath.Join(baseDir, sanitizePathSegment(version))
	if _, err := os.Stat(targetDir); err == nil {
		_ = os.RemoveAll(tmpDir)
		return version, hash.String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git checkout %s: %w", descriptor, err)
	}

	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	return version, hash.String(), nil
}

func gitPinnedVersion(descriptor, commit string) string {
	if commit == "" {
		return descriptor
	}
	if descriptor == "" || descriptor == commit {
		return commit
	}
	return fmt.Sprintf("%s@%s", descriptor, commit[:min(len(commit), 12)])
}

// gitRevisionsFromSpec lists the revisions to try in order. Branches other
// than the default only exist as remote-tracking refs after a clone.
func gitRevisionsFromSpec(src *SourceSpec) ([]plumbing.Revision, string, error) {
	if src.Rev != "" {
		return []plumbing.Revision{plumbing.Revision(src.Rev)}, src.Rev, nil
	}
	if src.Tag != "" {
		return []plumbing.Revision{plumbing.Revision("refs/tags/" + src.Tag)}, src.Tag, nil
	}
	if src.Branch != "" {
		return []plumbing.Revision{
			plumbing.Revision("refs/heads/" + src.Branch),
			plumbing.Revision("refs/remotes/origin/" + src.Branch),
		}, src.Branch, nil
	}
	return nil, "", fmt.Errorf("git sources require rev, tag, or branch")
}

func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	result := b.String()
	if result == "" || result == "." || result == ".." {
		return "head"
	}
	return result
}

// LoadSourceLock parses sources.lock. A missing file yields an empty lock.
func LoadSourceLock(path string) (*SourceLock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return &SourceLock{Path: abs}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw lockFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("lockfile: parse %s: %w", abs, err)
	}
	lock := &SourceLock{Path: abs, Generated: raw.Generated}
	for _, src := range raw.Sources {
		lock.Sources = append(lock.Sources, &LockedSource{
			Name:     src.Name,
			Git:      src.Git,
			Version:  src.Version,
			Commit:   src.Commit,
			Dir:      resolvePath(filepath.Dir(abs), src.Dir),
			Manifest: src.Manifest,
		})
	}
	return lock, nil
}

// WriteSourceLock serialises the lock to path, refreshing the timestamp.
// Checkout directories are stored relative to the lock file.
func WriteSourceLock(lock *SourceLock, path string) error {
	if lock == nil {
		return fmt.Errorf("lockfile: nil lock")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	lock.Path = abs
	lock.Generated = time.Now().UTC().Format(time.RFC3339)
	sort.SliceStable(lock.Sources, func(i, j int) bool { return lock.Sources[i].Name < lock.Sources[j].Name })

	raw := lockFile{Generated: lock.Generated}
	for _, src := range lock.Sources {
		dir := src.Dir
		if rel, err := filepath.Rel(filepath.Dir(abs), src.Dir); err == nil {
			dir = filepath.ToSlash(rel)
		}
		raw.Sources = append(raw.Sources, lockedEntry{
			Name:     src.Name,
			Git:      src.Git,
			Version:  src.Version,
			Commit:   src.Commit,
			Dir:      dir,
			Manifest: src.Manifest,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("lockfile: marshal %s: %w", abs, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lockfile: encoder close: %w", err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", abs, err)
	}
	return nil
}

type lockFile struct {
	Generated string        `yaml:"generated"`
	Sources   []lockedEntry `yaml:"sources"`
}

type lockedEntry struct {
	Name     string `yaml:"name"`
	Git      string `yaml:"git"`
	Version  string `yaml:"version"`
	Commit   string `yaml:"commit"`
	Dir      string `yaml:"dir"`
	Manifest string `yaml:"manifest"`
}
