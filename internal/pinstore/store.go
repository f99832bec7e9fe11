package pinstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"nftpin/internal/logging"
	"nftpin/internal/prefs"
)

// Observer receives every persisted status change.
type Observer interface {
	OnTokenStatusChanged(service string, token TokenKey, record PinRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(service string, token TokenKey, record PinRecord)

func (f ObserverFunc) OnTokenStatusChanged(service string, token TokenKey, record PinRecord) {
	f(service, token, record)
}

// Entry pairs a decoded token with its record.
type Entry struct {
	Service string
	Token   TokenKey
	Path    string
	Record  PinRecord
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for validation stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store reads and writes pin records. Writes are serialized so each
// read-modify-write observes the previous one.
type Store struct {
	prefs  prefs.Store
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
}

// New wraps a preference store.
func New(store prefs.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		prefs:     store,
		logger:    logging.NewComponentLogger(logger, "pinstore"),
		now:       time.Now,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers o and returns a function that removes it.
func (s *Store) AddObserver(o Observer) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Get returns the record for token. Absent or unreadable records yield a
// NotPinned record; read failures are logged.
func (s *Store) Get(ctx context.Context, service string, token TokenKey) PinRecord {
	path, err := EncodePath(service, token)
	if err != nil {
		return PinRecord{Status: StatusNotPinned}
	}
	record, _, err := s.load(ctx, path)
	if err != nil {
		logging.WarnWithContext(s.logger, "pin record unreadable", "pin_record_read_failed",
			logging.String(logging.FieldTokenPath, path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the record is treated as not pinned"),
		)
		return PinRecord{Status: StatusNotPinned}
	}
	return record
}

// Exists reports whether a record is stored for token.
func (s *Store) Exists(ctx context.Context, service string, token TokenKey) bool {
	path, err := EncodePath(service, token)
	if err != nil {
		return false
	}
	_, ok, err := s.prefs.Get(ctx, path)
	return err == nil && ok
}

// GetLastValidateTime returns the last successful validation time.
func (s *Store) GetLastValidateTime(ctx context.Context, service string, token TokenKey) (time.Time, bool) {
	record := s.Get(ctx, service, token)
	if record.LastValidated == nil {
		return time.Time{}, false
	}
	return *record.LastValidated, true
}

// Set overwrites status and error. Pinned stamps the validation time with
// now; any other status clears it. CIDs are preserved.
func (s *Store) Set(ctx context.Context, service string, token TokenKey, status PinStatus, pinErr *PinError) error {
	return s.mutate(ctx, service, token, func(record *PinRecord) {
		record.Status = status
		if pinErr != nil {
			errCopy := *pinErr
			record.Error = &errCopy
		} else {
			record.Error = nil
		}
		if status == StatusPinned {
			ts := s.now().UTC()
			record.LastValidated = &ts
		} else {
			record.LastValidated = nil
		}
	})
}

// AddCids replaces the record with a NotPinned one carrying cids.
func (s *Store) AddCids(ctx context.Context, service string, token TokenKey, cids []string) error {
	return s.mutate(ctx, service, token, func(record *PinRecord) {
		*record = PinRecord{
			Status: StatusNotPinned,
			CIDs:   append([]string(nil), cids...),
		}
	})
}

// Remove deletes the record and notifies observers with NotPinned.
func (s *Store) Remove(ctx context.Context, service string, token TokenKey) error {
	path, err := EncodePath(service, token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = s.prefs.Delete(ctx, path)
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("remove pin record %s: %w", path, err)
	}
	s.notify(observers, service, token, PinRecord{Status: StatusNotPinned})
	return nil
}

// ListKnownTokenPaths returns every stored path in the service namespace.
func (s *Store) ListKnownTokenPaths(ctx context.Context, service string) (map[string]struct{}, error) {
	entries, err := s.prefs.List(ctx, ServicePrefix(service))
	if err != nil {
		return nil, fmt.Errorf("list token paths: %w", err)
	}
	paths := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		paths[entry.Path] = struct{}{}
	}
	return paths, nil
}

// ListRecords returns decoded records for service ordered by path. Entries
// that fail to decode are logged and skipped.
func (s *Store) ListRecords(ctx context.Context, service string) ([]Entry, error) {
	raw, err := s.prefs.List(ctx, ServicePrefix(service))
	if err != nil {
		return nil, fmt.Errorf("list pin records: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		svc, token, err := DecodePath(item.Path)
		if err != nil {
			s.logger.Debug("skipping undecodable pin path", logging.String(logging.FieldTokenPath, item.Path), logging.Error(err))
			continue
		}
		record, err := decodeRecord(item.Value)
		if err != nil {
			s.logger.Debug("skipping undecodable pin record", logging.String(logging.FieldTokenPath, item.Path), logging.Error(err))
			continue
		}
		out = append(out, Entry{Service: svc, Token: token, Path: item.Path, Record: record})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Clear removes every pin record across all services.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.prefs.DeletePrefix(ctx, PathRoot+pathSeparator)
	if err != nil {
		return 0, fmt.Errorf("clear pin records: %w", err)
	}
	return removed, nil
}

func (s *Store) mutate(ctx context.Context, service string, token TokenKey, fn func(*PinRecord)) error {
	path, err := EncodePath(service, token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	record, _, err := s.load(ctx, path)
	if err != nil {
		record = PinRecord{Status: StatusNotPinned}
	}
	fn(&record)
	payload, err := encodeRecord(record)
	if err == nil {
		err = s.prefs.Set(ctx, path, payload)
	}
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("write pin record %s: %w", path, err)
	}
	s.notify(observers, service, token, record)
	return nil
}

func (s *Store) load(ctx context.Context, path string) (PinRecord, bool, error) {
	raw, ok, err := s.prefs.Get(ctx, path)
	if err != nil {
		return PinRecord{}, false, err
	}
	if !ok {
		return PinRecord{Status: StatusNotPinned}, false, nil
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return PinRecord{}, true, err
	}
	return record, true, nil
}

func (s *Store) snapshotObserversLocked() []Observer {
	if len(s.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}

func (s *Store) notify(observers []Observer, service string, token TokenKey, record PinRecord) {
	for _, o := range observers {
		o.OnTokenStatusChanged(service, token, record.Clone())
	}
}
