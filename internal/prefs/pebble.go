package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps preferences in an embedded Pebble LSM directory. Keys are
// the dotted paths themselves, so prefix scans come straight from iterator
// bounds.
type PebbleStore struct {
	db     *pebble.DB
	dir    string
	closed atomic.Bool
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("prefs: pebble directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pebble dir %s: %w", dir, err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db %s: %w", dir, err)
	}
	return &PebbleStore{db: db, dir: dir}, nil
}

// Dir returns the database directory.
func (p *PebbleStore) Dir() string {
	return p.dir
}

func (p *PebbleStore) Get(_ context.Context, path string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, ErrClosed
	}
	val, closer, err := p.db.Get([]byte(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get pref %s: %w", path, err)
	}
	out := append([]byte(nil), val...)
	_ = closer.Close()
	return out, true, nil
}

func (p *PebbleStore) Set(_ context.Context, path string, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	if err := p.db.Set([]byte(path), value, pebble.Sync); err != nil {
		return fmt.Errorf("set pref %s: %w", path, err)
	}
	return nil
}

func (p *PebbleStore) Delete(_ context.Context, path string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.db.Delete([]byte(path), pebble.Sync); err != nil {
		return fmt.Errorf("delete pref %s: %w", path, err)
	}
	return nil
}

func (p *PebbleStore) List(_ context.Context, prefix string) ([]Entry, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	iter, err := p.db.NewIter(prefixOptions(prefix))
	if err != nil {
		return nil, fmt.Errorf("list prefs %q: %w", prefix, err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		entries = append(entries, Entry{
			Path:  string(iter.Key()),
			Value: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list prefs %q: %w", prefix, err)
	}
	return entries, nil
}

func (p *PebbleStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	iter, err := p.db.NewIter(prefixOptions(prefix))
	if err != nil {
		return 0, fmt.Errorf("delete prefs %q: %w", prefix, err)
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	var removed int64
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			_ = iter.Close()
			return 0, fmt.Errorf("delete prefs %q: %w", prefix, err)
		}
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("delete prefs %q: %w", prefix, err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit prefix delete %q: %w", prefix, err)
	}
	return removed, nil
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	if p == nil || p.db == nil || p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}

func prefixOptions(prefix string) *pebble.IterOptions {
	opts := &pebble.IterOptions{}
	if prefix == "" {
		return opts
	}
	opts.LowerBound = []byte(prefix)
	opts.UpperBound = prefixSuccessor([]byte(prefix))
	return opts
}

// prefixSuccessor returns the smallest key greater than every key starting
// with prefix, or nil when no such key exists.
func prefixSuccessor(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
