package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"nftpin/internal/config"
	"nftpin/internal/logging"
	"nftpin/internal/prefs"
	"nftpin/internal/services"
)

// PinsPrefix is where the per-key CID bookkeeping lives in the preference store.
const PinsPrefix = "ipfs.local_pins."

// LocalPinService pins CIDs on a local Kubo node.
type LocalPinService struct {
	client *kuboClient
	prefs  prefs.Store
	logger *slog.Logger

	mu sync.Mutex
}

// Option customizes the service.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client used for Kubo calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewLocalPinService builds a pin backend for the node at cfg.APIURL.
func NewLocalPinService(cfg config.IPFS, store prefs.Store, logger *slog.Logger, opts ...Option) *LocalPinService {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	o := options{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return &LocalPinService{
		client: newKuboClient(cfg.APIURL, o.httpClient),
		prefs:  store,
		logger: logging.NewComponentLogger(logger, "ipfs"),
	}
}

// AddPins pins every CID and records them under key. CIDs pinned before a
// later one fails stay pinned and are not recorded; a retry pins them again.
func (s *LocalPinService) AddPins(ctx context.Context, key string, cids []string) error {
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrValidation, "ipfs", "add pins", "empty key", nil)
	}
	if len(cids) == 0 {
		return services.Wrap(services.ErrValidation, "ipfs", "add pins", "no cids for "+key, nil)
	}
	for _, cid := range cids {
		if err := s.client.pinAdd(ctx, cid); err != nil {
			return fmt.Errorf("pin %s: %w", cid, err)
		}
		s.logger.Debug("cid pinned", logging.String(logging.FieldTokenPath, key), logging.String("cid", cid))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveKey(ctx, key, cids)
}

// RemovePins forgets key and unpins the CIDs no other key still references.
// Removing an unknown key succeeds.
func (s *LocalPinService) RemovePins(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	cids, ok := all[key]
	if !ok {
		return nil
	}
	delete(all, key)

	referenced := make(map[string]struct{})
	for _, other := range all {
		for _, cid := range other {
			referenced[cid] = struct{}{}
		}
	}
	for _, cid := range cids {
		if _, shared := referenced[cid]; shared {
			continue
		}
		if err := s.client.pinRm(ctx, cid); err != nil {
			return fmt.Errorf("unpin %s: %w", cid, err)
		}
	}
	if err := s.prefs.Delete(ctx, PinsPrefix+key); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// ValidatePins is false when key's bookkeeping no longer covers cids or any
// CID has dropped out of Kubo's recursive pin set. An unreachable node yields
// an error rather than false.
func (s *LocalPinService) ValidatePins(ctx context.Context, key string, cids []string) (bool, error) {
	s.mu.Lock()
	recorded, ok, err := s.loadKey(ctx, key)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !ok || !covers(recorded, cids) {
		return false, nil
	}
	for _, cid := range cids {
		pinned, err := s.client.isPinned(ctx, cid)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", cid, err)
		}
		if !pinned {
			return false, nil
		}
	}
	return true, nil
}

// Restore re-pins recorded CIDs that Kubo no longer holds, for example after
// the node's repository was wiped.
func (s *LocalPinService) Restore(ctx context.Context) error {
	s.mu.Lock()
	all, err := s.loadAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}

	held, err := s.client.recursivePins(ctx)
	if err != nil {
		return fmt.Errorf("list kubo pins: %w", err)
	}
	missing := make(map[string]struct{})
	for _, cids := range all {
		for _, cid := range cids {
			if _, ok := held[cid]; !ok {
				missing[cid] = struct{}{}
			}
		}
	}
	if len(missing) == 0 {
		s.logger.Debug("local pins intact", logging.Int("keys", len(all)))
		return nil
	}

	var errs []error
	for _, cid := range sortedSet(missing) {
		if err := s.client.pinAdd(ctx, cid); err != nil {
			errs = append(errs, fmt.Errorf("re-pin %s: %w", cid, err))
		}
	}
	s.logger.Info("local pins restored",
		logging.Int("missing", len(missing)),
		logging.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// ResetAll unpins every recorded CID and drops all bookkeeping. Bookkeeping is
// dropped even when some unpins fail so a reset never leaves stale keys.
func (s *LocalPinService) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	unique := make(map[string]struct{})
	for _, cids := range all {
		for _, cid := range cids {
			unique[cid] = struct{}{}
		}
	}
	var errs []error
	for _, cid := range sortedSet(unique) {
		if err := s.client.pinRm(ctx, cid); err != nil {
			errs = append(errs, fmt.Errorf("unpin %s: %w", cid, err))
		}
	}
	if _, err := s.prefs.DeletePrefix(ctx, PinsPrefix); err != nil {
		errs = append(errs, fmt.Errorf("clear local pin records: %w", err))
	}
	return errors.Join(errs...)
}

// Version reports the Kubo version string.
func (s *LocalPinService) Version(ctx context.Context) (string, error) {
	return s.client.version(ctx)
}

// RecordedKeys lists the keys with local pins.
func (s *LocalPinService) RecordedKeys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalPinService) saveKey(ctx context.Context, key string, cids []string) error {
	data, err := json.Marshal(cids)
	if err != nil {
		return fmt.Errorf("encode cids: %w", err)
	}
	if err := s.prefs.Set(ctx, PinsPrefix+key, data); err != nil {
		return fmt.Errorf("record pins for %s: %w", key, err)
	}
	return nil
}

func (s *LocalPinService) loadKey(ctx context.Context, key string) ([]string, bool, error) {
	raw, ok, err := s.prefs.Get(ctx, PinsPrefix+key)
	if err != nil || !ok {
		return nil, false, err
	}
	var cids []string
	if err := json.Unmarshal(raw, &cids); err != nil {
		return nil, false, fmt.Errorf("decode local pins for %s: %w", key, err)
	}
	return cids, true, nil
}

// loadAll skips entries that do not decode so one bad value cannot block
// every removal.
func (s *LocalPinService) loadAll(ctx context.Context) (map[string][]string, error) {
	entries, err := s.prefs.List(ctx, PinsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list local pins: %w", err)
	}
	all := make(map[string][]string, len(entries))
	for _, entry := range entries {
		var cids []string
		if err := json.Unmarshal(entry.Value, &cids); err != nil {
			s.logger.Warn("ignoring unreadable local pin record",
				logging.String("path", entry.Path),
				logging.Error(err),
			)
			continue
		}
		all[strings.TrimPrefix(entry.Path, PinsPrefix)] = cids
	}
	return all, nil
}

func covers(recorded, want []string) bool {
	have := make(map[string]struct{}, len(recorded))
	for _, cid := range recorded {
		have[cid] = struct{}{}
	}
	for _, cid := range want {
		if _, ok := have[cid]; !ok {
			return false
		}
	}
	return true
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
