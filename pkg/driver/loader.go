package driver

import (
	"fmt"
	"path/filepath"

	"routines/runtime-go/pkg/registry"
)

// ManifestPaths lists the local manifests followed by the manifests of every
// locked source, in configuration order.
func ManifestPaths(cfg *Config) ([]string, error) {
	paths := append([]string(nil), cfg.Manifests...)
	if len(cfg.Sources) == 0 {
		return paths, nil
	}
	lock, err := LoadSourceLock(filepath.Join(cfg.CacheDir, LockFileName))
	if err != nil {
		return nil, err
	}
	for _, src := range cfg.Sources {
		locked := lock.Find(src.Name)
		if locked == nil || locked.Git != src.Git {
			return nil, fmt.Errorf("source %s has not been fetched; run `routines fetch`", src.Name)
		}
		paths = append(paths, locked.ManifestPath())
	}
	return paths, nil
}

// LoadRegistry loads every manifest reachable from cfg into reg.
func LoadRegistry(cfg *Config, reg *registry.Registry) error {
	paths, err := ManifestPaths(cfg)
	if err != nil {
		return err
	}
	for _, path := range paths {
		manifest, err := LoadManifest(path)
		if err != nil {
			return err
		}
		if err := manifest.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
