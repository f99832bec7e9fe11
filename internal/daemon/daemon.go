package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"nftpin/internal/autopin"
	"nftpin/internal/config"
	"nftpin/internal/inventory"
	"nftpin/internal/logging"
	"nftpin/internal/notifications"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
	"nftpin/internal/preflight"
	"nftpin/internal/prefs"
	"nftpin/internal/services/ipfs"
	"nftpin/internal/services/nftmeta"
)

// Source lists the user's tokens for both the scheduler and the watcher.
type Source interface {
	GetAllUserTokens(ctx context.Context) ([]pinstore.TokenKey, error)
}

// Option overrides a collaborator, mainly for tests.
type Option func(*Daemon)

// WithPinBackend replaces the Kubo pin backend.
func WithPinBackend(backend pinning.PinBackend) Option {
	return func(d *Daemon) { d.backend = backend }
}

// WithMetadataFetcher replaces the JSON-RPC metadata fetcher.
func WithMetadataFetcher(meta pinning.MetadataFetcher) Option {
	return func(d *Daemon) { d.meta = meta }
}

// WithInventory replaces the file-backed inventory.
func WithInventory(source Source) Option {
	return func(d *Daemon) { d.inventory = source }
}

// WithNotifier replaces the ntfy notifier.
func WithNotifier(service notifications.Service) Option {
	return func(d *Daemon) { d.notifier = service }
}

// WithoutPreflight skips the network checks run on Start.
func WithoutPreflight() Option {
	return func(d *Daemon) { d.skipPreflight = true }
}

// Daemon owns the pinning components and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	prefs  prefs.Store

	backend       pinning.PinBackend
	meta          pinning.MetadataFetcher
	inventory     Source
	notifier      notifications.Service
	skipPreflight bool

	records   *pinstore.Store
	pinner    *serialPinner
	scheduler *autopin.Scheduler
	watcher   *inventory.Watcher
	observer  *notifications.Observer
	unobserve []func()
	schedDone chan struct{}
	lockPath  string
	lock      *flock.Flock
	running   atomic.Bool
	cancel    context.CancelFunc
	checksMu  sync.Mutex
	checks    []preflight.Result
	lifecycle sync.Mutex
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	AutoPin      autopin.State
	StatusCounts map[pinstore.PinStatus]int
	StorePath    string
	LockFilePath string
	Preflight    []preflight.Result
}

// New constructs a daemon over an open preference store.
func New(cfg *config.Config, store prefs.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and preference store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		prefs:    store,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.backend == nil {
		d.backend = ipfs.NewLocalPinService(cfg.IPFS, store, logger)
	}
	if d.meta == nil {
		d.meta = nftmeta.New(cfg, logger)
	}
	if d.inventory == nil {
		d.inventory = inventory.NewFileInventory(cfg.Paths.InventoryFile)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}

	d.records = pinstore.New(store, logger)
	d.pinner = &serialPinner{Reconciler: pinning.NewReconciler(d.records, d.backend, d.meta, logger)}
	d.observer = notifications.NewObserver(cfg, d.notifier, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight, and launches the scheduler
// and inventory watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another nftpin daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runPreflight(runCtx)

	entries, err := d.records.ListRecords(runCtx, "")
	if err != nil {
		logging.WarnWithContext(d.logger, "pin records unreadable at start", "pin_records_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the preference store"),
			logging.String(logging.FieldImpact, "the first status change per token may notify twice"),
		)
	}
	d.observer.Prime(entries)

	d.scheduler = autopin.New(autopin.Options{
		Pinner:           d.pinner,
		Inventory:        d.inventory,
		Prefs:            d.prefs,
		Logger:           d.logger,
		DefaultEnabled:   d.cfg.AutoPin.Enabled,
		ValidateInterval: d.cfg.ValidateInterval(),
		RetryBase:        d.cfg.RetryBase(),
	})
	d.unobserve = []func(){
		d.records.AddObserver(d.observer),
		d.scheduler.AddObserver(d.observer),
	}

	d.schedDone = make(chan struct{})
	go func(sched *autopin.Scheduler, done chan struct{}) {
		defer close(done)
		if err := sched.Run(runCtx); err != nil {
			d.logger.Error("auto-pin scheduler exited", logging.Error(err))
		}
	}(d.scheduler, d.schedDone)

	d.watcher = inventory.NewWatcher(d.inventory, d.scheduler, d.cfg.InventoryPollInterval(), d.logger)
	if err := d.watcher.Start(runCtx); err != nil {
		cancel()
		<-d.schedDone
		d.dropObservers()
		_ = d.lock.Unlock()
		return fmt.Errorf("start inventory watcher: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("nftpin daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", prefs.Location(d.cfg)),
	)
	return nil
}

// Stop halts background work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}

	d.watcher.Stop()
	d.scheduler.Close()
	d.cancel()
	d.cancel = nil
	<-d.schedDone
	d.dropObservers()
	d.observer.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("nftpin daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.prefs.Close()
}

func (d *Daemon) dropObservers() {
	for _, remove := range d.unobserve {
		remove()
	}
	d.unobserve = nil
}

func (d *Daemon) runPreflight(ctx context.Context) {
	if d.skipPreflight {
		return
	}
	results := preflight.RunAll(ctx, d.cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration or start the service; pin work is retried"),
			logging.String(logging.FieldImpact, "pin operations may fail until the check passes"),
		)
	}
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
}

func (d *Daemon) requireRunning() error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StatusCounts: make(map[pinstore.PinStatus]int),
		StorePath:    prefs.Location(d.cfg),
		LockFilePath: d.lockPath,
	}
	if status.Running {
		if state, err := d.scheduler.Snapshot(ctx); err == nil {
			status.AutoPin = state
		}
	}
	if entries, err := d.records.ListRecords(ctx, ""); err == nil {
		for _, entry := range entries {
			status.StatusCounts[entry.Record.EffectiveStatus()]++
		}
	}
	d.checksMu.Lock()
	status.Preflight = append([]preflight.Result(nil), d.checks...)
	d.checksMu.Unlock()
	return status
}

// List returns pin records, optionally filtered by status.
func (d *Daemon) List(ctx context.Context, statuses []pinstore.PinStatus) ([]pinstore.Entry, error) {
	entries, err := d.records.ListRecords(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return entries, nil
	}
	wanted := make(map[pinstore.PinStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if _, ok := wanted[entry.Record.EffectiveStatus()]; ok {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// SetAutoPin switches auto-pin on or off.
func (d *Daemon) SetAutoPin(ctx context.Context, enabled bool) error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	return d.scheduler.SetAutoPinEnabled(ctx, enabled)
}

// AutoPinEnabled reports the scheduler's flag.
func (d *Daemon) AutoPinEnabled(ctx context.Context) (bool, error) {
	if err := d.requireRunning(); err != nil {
		return false, err
	}
	return d.scheduler.IsEnabled(ctx)
}

// Restore re-runs reconciliation against the inventory.
func (d *Daemon) Restore(ctx context.Context) error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	return d.scheduler.Restore(ctx)
}

// Reset disables auto-pin, unpins every token, and clears all records.
func (d *Daemon) Reset(ctx context.Context) error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	return d.scheduler.Reset(ctx)
}

// Pin pins token now, outside the scheduler's queue.
func (d *Daemon) Pin(ctx context.Context, token pinstore.TokenKey) (pinning.Result, error) {
	if err := d.requireRunning(); err != nil {
		return pinning.Result{}, err
	}
	return d.pinner.AddPin(ctx, "", token), nil
}

// Unpin removes token's pins and record now.
func (d *Daemon) Unpin(ctx context.Context, token pinstore.TokenKey) (pinning.Result, error) {
	if err := d.requireRunning(); err != nil {
		return pinning.Result{}, err
	}
	return d.pinner.RemovePin(ctx, "", token), nil
}

// Validate checks token's pins now.
func (d *Daemon) Validate(ctx context.Context, token pinstore.TokenKey) (pinning.Result, pinning.ValidateOutcome, error) {
	if err := d.requireRunning(); err != nil {
		return pinning.Result{}, pinning.ValidationError, err
	}
	result, outcome := d.pinner.Validate(ctx, "", token)
	return result, outcome, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
