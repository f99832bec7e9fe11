package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nftpin/internal/config"
)

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("prefs store closed")

// Entry is one stored path and its raw value.
type Entry struct {
	Path  string
	Value []byte
}

// Store is a durable dotted-path key-value store.
type Store interface {
	// Get returns the value stored at path and whether it exists.
	Get(ctx context.Context, path string) ([]byte, bool, error)
	// Set creates or overwrites the value at path.
	Set(ctx context.Context, path string, value []byte) error
	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
	// List returns every entry whose path starts with prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// DeletePrefix removes every entry whose path starts with prefix and
	// reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Close() error
}

// Open builds the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("prefs: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Store.Backend {
	case config.StoreBackendSQLite, "":
		return OpenSQLite(cfg.Store.SQLiteFile)
	case config.StoreBackendPebble:
		return OpenPebble(cfg.Store.PebbleDir)
	default:
		return nil, fmt.Errorf("prefs: unsupported backend %q", cfg.Store.Backend)
	}
}

// Location describes where the configured backend keeps its data.
func Location(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if cfg.Store.Backend == config.StoreBackendPebble {
		return cfg.Store.PebbleDir
	}
	return cfg.Store.SQLiteFile
}

// GetBool reads a boolean flag. ok is false when the flag was never written.
func GetBool(ctx context.Context, store Store, path string) (value bool, ok bool, err error) {
	raw, found, err := store.Get(ctx, path)
	if err != nil || !found {
		return false, false, err
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(string(raw)))
	if err != nil {
		return false, false, fmt.Errorf("prefs: %s holds %q, not a bool: %w", path, raw, err)
	}
	return parsed, true, nil
}

// SetBool writes a boolean flag.
func SetBool(ctx context.Context, store Store, path string, value bool) error {
	return store.Set(ctx, path, []byte(strconv.FormatBool(value)))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("prefs: empty path")
	}
	return nil
}
