package prefs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists preferences in a single SQLite table keyed by path.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the preference database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("prefs: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	ctx = ensureContext(ctx)
	var value []byte
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT value FROM prefs WHERE path = ?", path).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get pref %s: %w", path, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, path string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO prefs (path, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, value, now)
	if err != nil {
		return fmt.Errorf("set pref %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM prefs WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete pref %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx = ensureContext(ctx)
	var entries []Entry
	err := retryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx,
			"SELECT path, value FROM prefs WHERE substr(path, 1, ?) = ? ORDER BY path",
			len(prefix), prefix)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var entry Entry
			if err := rows.Scan(&entry.Path, &entry.Value); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list prefs %q: %w", prefix, err)
	}
	return entries, nil
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.execWithRetry(ctx, "DELETE FROM prefs WHERE substr(path, 1, ?) = ?", len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("delete prefs %q: %w", prefix, err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil || s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database %s has version %d, expected %d (run 'nftpin reset' or delete the database)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
