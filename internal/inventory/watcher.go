package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
)

// Source is anything that can list the user's tokens.
type Source interface {
	GetAllUserTokens(ctx context.Context) ([]pinstore.TokenKey, error)
}

// Handler receives inventory changes.
type Handler interface {
	OnTokenAdded(token pinstore.TokenKey)
	OnTokenRemoved(token pinstore.TokenKey)
}

// Watcher polls a Source and reports differences between reads. The first
// successful read only records a baseline; the scheduler's restore covers it.
type Watcher struct {
	source   Source
	handler  Handler
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pollMu   sync.Mutex
	known    map[string]pinstore.TokenKey
	baseline bool
}

// NewWatcher builds a watcher that polls every interval.
func NewWatcher(source Source, handler Handler, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		source:   source,
		handler:  handler,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "inventory"),
	}
}

// Start begins polling in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("inventory watcher already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.Poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll reads the source once and emits the changes since the last read.
// Read failures keep the previous view.
func (w *Watcher) Poll(ctx context.Context) {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	tokens, err := w.source.GetAllUserTokens(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(w.logger, "inventory read failed; will retry", "inventory_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the inventory file path and JSON syntax"),
			logging.String(logging.FieldImpact, "token changes are not picked up until the file is readable"),
		)
		return
	}

	current := make(map[string]pinstore.TokenKey, len(tokens))
	for _, token := range tokens {
		path, err := pinstore.EncodePath("", token)
		if err != nil {
			continue
		}
		current[path] = token
	}

	if !w.baseline {
		w.known = current
		w.baseline = true
		w.logger.Debug("inventory baseline recorded", logging.Int("tokens", len(current)))
		return
	}

	added, removed := diff(w.known, current)
	w.known = current
	for _, path := range added {
		w.logger.Info("token added to inventory", logging.String(logging.FieldTokenPath, path))
		w.handler.OnTokenAdded(current[path])
	}
	for _, token := range removed {
		path, _ := pinstore.EncodePath("", token)
		w.logger.Info("token removed from inventory", logging.String(logging.FieldTokenPath, path))
		w.handler.OnTokenRemoved(token)
	}
}

func diff(before, after map[string]pinstore.TokenKey) (added []string, removed []pinstore.TokenKey) {
	for path := range after {
		if _, ok := before[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(added)

	var gone []string
	for path := range before {
		if _, ok := after[path]; !ok {
			gone = append(gone, path)
		}
	}
	sort.Strings(gone)
	for _, path := range gone {
		removed = append(removed, before[path])
	}
	return added, removed
}
