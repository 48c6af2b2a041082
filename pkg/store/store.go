package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is the durable key-value backing used for frame stacks and their
// auxiliary state. Values are encoded as JSON.
type Store interface {
	// ReadModel decodes the value stored under key into dst. It reports
	// false when the key does not exist.
	ReadModel(ctx context.Context, key string, dst any) (bool, error)
	WriteModel(ctx context.Context, key string, value any) error
	// DeleteModel removes key. Deleting a missing key is not an error.
	DeleteModel(ctx context.Context, key string) error
	// Keys lists the stored keys that start with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ErrInvalidKey is returned for keys that are empty or contain empty,
// "." or ".." segments.
var ErrInvalidKey = errors.New("store: invalid key")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open constructs the store named by backend. path is the directory for the
// file backend and the database file for sqlite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(path)
	case BackendSQLite:
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}

// ValidateKey checks that key is a slash-separated path of non-empty segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, "\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
