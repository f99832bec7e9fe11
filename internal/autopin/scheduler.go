package autopin

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nftpin/internal/logging"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
	"nftpin/internal/prefs"
	"nftpin/internal/services"
)

// EnabledPref is the preference path holding the persisted auto-pin flag.
const EnabledPref = "autopin.enabled"

const (
	defaultValidateInterval = 24 * time.Hour
	defaultRetryBase        = 2 * time.Minute
	eventBuffer             = 64
)

// ErrClosed is returned by calls made after the scheduler stopped.
var ErrClosed = errors.New("autopin scheduler closed")

// Pinner is the reconciler surface the scheduler drives.
type Pinner interface {
	AddPin(ctx context.Context, service string, token pinstore.TokenKey) pinning.Result
	RemovePin(ctx context.Context, service string, token pinstore.TokenKey) pinning.Result
	Validate(ctx context.Context, service string, token pinstore.TokenKey) (pinning.Result, pinning.ValidateOutcome)
	MarkAsPendingForPinning(ctx context.Context, service string, token pinstore.TokenKey) error
	MarkAsPendingForUnpinning(ctx context.Context, service string, token pinstore.TokenKey) error
	GetTokenStatus(ctx context.Context, service string, token pinstore.TokenKey) pinstore.PinRecord
	ListKnownTokenPaths(ctx context.Context, service string) (map[string]struct{}, error)
	Restore(ctx context.Context) error
	Reset(ctx context.Context) error
}

// TokenInventory lists the tokens the user currently holds.
type TokenInventory interface {
	GetAllUserTokens(ctx context.Context) ([]pinstore.TokenKey, error)
}

// Observer is told when auto-pin is switched on or off.
type Observer interface {
	OnAutoPinStatusChanged(enabled bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(enabled bool)

func (f ObserverFunc) OnAutoPinStatusChanged(enabled bool) { f(enabled) }

// Options configures a Scheduler.
type Options struct {
	Pinner    Pinner
	Inventory TokenInventory
	Prefs     prefs.Store
	Logger    *slog.Logger
	Clock     Clock

	// DefaultEnabled applies until the flag has been persisted once.
	DefaultEnabled   bool
	ValidateInterval time.Duration
	RetryBase        time.Duration
}

// State is a copy of the scheduler's in-memory state.
type State struct {
	Enabled        bool
	KnownTokens    []string
	Current        *Intent
	Queue          []Intent
	PendingRetries int
	InFlight       bool

	// Restoring is true while the inventory fetch of a restore is pending.
	Restoring bool
}

// Scheduler serializes pin work for the local node.
type Scheduler struct {
	pins             Pinner
	inventory        TokenInventory
	prefs            prefs.Store
	logger           *slog.Logger
	clock            Clock
	defaultEnabled   bool
	validateInterval time.Duration
	retryBase        time.Duration

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	// Owned by the Run goroutine.
	ctx        context.Context
	enabled    bool
	generation uint64
	known      map[string]pinstore.TokenKey
	queue      []Intent
	current    *Intent
	inFlight   bool
	restoring  bool
	timers     map[int]retryTimer
	nextTimer  int
}

// retryTimer is a pending delayed callback. path is empty for restore retries.
type retryTimer struct {
	timer Timer
	path  string
}

// New builds a scheduler. Run must be called for it to do any work.
func New(opts Options) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	validate := opts.ValidateInterval
	if validate <= 0 {
		validate = defaultValidateInterval
	}
	retry := opts.RetryBase
	if retry <= 0 {
		retry = defaultRetryBase
	}
	return &Scheduler{
		pins:             opts.Pinner,
		inventory:        opts.Inventory,
		prefs:            opts.Prefs,
		logger:           logging.NewComponentLogger(opts.Logger, "autopin"),
		clock:            clock,
		defaultEnabled:   opts.DefaultEnabled,
		validateInterval: validate,
		retryBase:        retry,
		events:           make(chan func(), eventBuffer),
		done:             make(chan struct{}),
		observers:        make(map[int]Observer),
		known:            make(map[string]pinstore.TokenKey),
		timers:           make(map[int]retryTimer),
	}
}

// Run loads the persisted flag, restores when enabled, and processes events
// until ctx is cancelled or Close is called.
func (s *Scheduler) Run(ctx context.Context) error {
	first := false
	s.startOnce.Do(func() { first = true })
	if !first {
		return errors.New("autopin scheduler already running")
	}
	s.ctx = ctx

	enabled, ok, err := prefs.GetBool(ctx, s.prefs, EnabledPref)
	if err != nil {
		logging.WarnWithContext(s.logger, "auto-pin flag unreadable", "autopin_flag_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'nftpin autopin enable' or 'disable' to rewrite it"),
			logging.Bool("default", s.defaultEnabled),
		)
	}
	if !ok {
		enabled = s.defaultEnabled
	}
	s.enabled = enabled
	s.logger.Info("auto-pin scheduler started", logging.Bool("enabled", enabled))
	if enabled {
		s.restore()
	}

	defer s.shutdown()
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

// Close stops the loop. Completions arriving afterwards are dropped.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) shutdown() {
	s.Close()
	s.stopTimers()
	s.logger.Debug("auto-pin scheduler stopped")
}

// AddObserver registers o and returns a function that removes it.
func (s *Scheduler) AddObserver(o Observer) (remove func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// OnTokenAdded queues an add for a newly held token.
func (s *Scheduler) OnTokenAdded(token pinstore.TokenKey) {
	s.post(func() { s.onTokenAdded(token) })
}

// OnTokenRemoved queues a delete for a token the user no longer holds.
func (s *Scheduler) OnTokenRemoved(token pinstore.TokenKey) {
	s.post(func() { s.onTokenRemoved(token) })
}

// Restore re-runs reconciliation against the live inventory.
func (s *Scheduler) Restore(ctx context.Context) error {
	return s.do(ctx, func() {
		if s.enabled {
			s.restore()
		}
	})
}

// SetAutoPinEnabled persists the flag. Enabling restores; disabling drops
// every queued, current, and retrying intent.
func (s *Scheduler) SetAutoPinEnabled(ctx context.Context, enabled bool) error {
	var err error
	doErr := s.do(ctx, func() { err = s.setEnabled(enabled) })
	if doErr != nil {
		return doErr
	}
	return err
}

// IsEnabled reports the current flag.
func (s *Scheduler) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.do(ctx, func() { enabled = s.enabled })
	return enabled, err
}

// Reset disables auto-pin, then unpins and forgets every token.
func (s *Scheduler) Reset(ctx context.Context) error {
	var err error
	doErr := s.do(ctx, func() {
		if setErr := s.setEnabled(false); setErr != nil {
			err = setErr
			return
		}
		err = s.pins.Reset(s.ctx)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Snapshot returns a copy of the in-memory state.
func (s *Scheduler) Snapshot(ctx context.Context) (State, error) {
	var state State
	err := s.do(ctx, func() {
		state.Enabled = s.enabled
		state.KnownTokens = make([]string, 0, len(s.known))
		for path := range s.known {
			state.KnownTokens = append(state.KnownTokens, path)
		}
		sort.Strings(state.KnownTokens)
		if s.current != nil {
			cur := *s.current
			state.Current = &cur
		}
		state.Queue = append([]Intent(nil), s.queue...)
		state.PendingRetries = len(s.timers)
		state.InFlight = s.inFlight
		state.Restoring = s.restoring
	})
	return state, err
}

// post hands fn to the loop. It drops fn once the scheduler is closed.
func (s *Scheduler) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// do runs fn on the loop and waits for it.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) setEnabled(enabled bool) error {
	if err := prefs.SetBool(s.ctx, s.prefs, EnabledPref, enabled); err != nil {
		return services.Wrap(services.ErrTransient, "autopin", "set enabled", "persist flag", err)
	}
	if enabled == s.enabled {
		return nil
	}
	s.enabled = enabled
	if enabled {
		s.logger.Info("auto-pin enabled")
		s.restore()
	} else {
		s.generation++
		s.restoring = false
		s.queue = nil
		s.current = nil
		s.known = make(map[string]pinstore.TokenKey)
		s.stopTimers()
		s.logger.Info("auto-pin disabled")
	}
	s.notifyObservers(enabled)
	return nil
}

func (s *Scheduler) notifyObservers(enabled bool) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	list := make([]Observer, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.observers[id])
	}
	s.obsMu.Unlock()
	for _, o := range list {
		o.OnAutoPinStatusChanged(enabled)
	}
}

func (s *Scheduler) onTokenAdded(token pinstore.TokenKey) {
	if !s.enabled || !pinning.IsTokenSupported(token) {
		return
	}
	intent, err := newIntent("", token, OpAdd)
	if err != nil {
		return
	}
	s.known[intent.Path] = token
	s.dropQueued(intent.Path)
	s.addOrExecute(intent)
}

func (s *Scheduler) onTokenRemoved(token pinstore.TokenKey) {
	if !s.enabled || !pinning.IsTokenSupported(token) {
		return
	}
	intent, err := newIntent("", token, OpDelete)
	if err != nil {
		return
	}
	delete(s.known, intent.Path)
	s.dropQueued(intent.Path)
	s.addOrExecute(intent)
}

// dropQueued removes queued intents and pending retries for path.
func (s *Scheduler) dropQueued(path string) {
	s.filterQueue(func(queued Intent) bool { return queued.Path != path })
	s.cancelRetries(path)
}

// filterQueue keeps only the queued intents for which keep is true.
func (s *Scheduler) filterQueue(keep func(Intent) bool) {
	kept := s.queue[:0]
	for _, queued := range s.queue {
		if keep(queued) {
			kept = append(kept, queued)
		}
	}
	s.queue = kept
}

func (s *Scheduler) cancelRetries(path string) {
	for id, pending := range s.timers {
		if pending.path == path {
			pending.timer.Stop()
			delete(s.timers, id)
		}
	}
}

// addOrExecute enqueues intent and advances the queue.
func (s *Scheduler) addOrExecute(intent Intent) {
	if s.enqueue(intent) {
		s.checkQueue()
	}
}

// enqueue applies the dedup and staleness filters, marks the record pending,
// and appends intent. It reports whether intent was queued.
func (s *Scheduler) enqueue(intent Intent) bool {
	if !s.enabled {
		return false
	}
	if s.current != nil && s.current.Equal(intent) {
		return false
	}
	for _, queued := range s.queue {
		if queued.Equal(intent) {
			return false
		}
	}
	_, known := s.known[intent.Path]
	switch intent.Operation {
	case OpAdd, OpValidate:
		if !known {
			return false
		}
	case OpDelete:
		if known {
			return false
		}
	}

	var err error
	switch intent.Operation {
	case OpAdd:
		err = s.pins.MarkAsPendingForPinning(s.ctx, intent.Service, intent.Token)
	case OpDelete:
		err = s.pins.MarkAsPendingForUnpinning(s.ctx, intent.Service, intent.Token)
	}
	if err != nil {
		s.logger.Debug("mark pending failed", logging.String(logging.FieldTokenPath, intent.Path), logging.Error(err))
	}
	s.queue = append(s.queue, intent)
	return true
}

func (s *Scheduler) checkQueue() {
	if !s.enabled || len(s.queue) == 0 || s.current != nil || s.inFlight {
		return
	}
	intent := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &intent
	s.inFlight = true
	s.dispatch(intent, s.generation)
}

func (s *Scheduler) dispatch(intent Intent, gen uint64) {
	ctx := services.WithTokenPath(s.ctx, intent.Path)
	ctx = services.WithOperation(ctx, intent.Operation.String())
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logging.WithContext(ctx, s.logger).Debug("intent dispatched", logging.Int(logging.FieldAttempt, intent.Attempt))

	go func() {
		switch intent.Operation {
		case OpAdd:
			res := s.pins.AddPin(ctx, intent.Service, intent.Token)
			s.post(func() { s.onTaskFinished(gen, intent, res) })
		case OpDelete:
			res := s.pins.RemovePin(ctx, intent.Service, intent.Token)
			s.post(func() { s.onTaskFinished(gen, intent, res) })
		case OpValidate:
			res, outcome := s.pins.Validate(ctx, intent.Service, intent.Token)
			s.post(func() { s.onValidateFinished(gen, intent, res, outcome) })
		}
	}()
}

func (s *Scheduler) onTaskFinished(gen uint64, intent Intent, res pinning.Result) {
	s.inFlight = false
	if gen != s.generation {
		s.checkQueue()
		return
	}
	if !res.Success && (intent.Operation != OpAdd || res.Err.Retryable()) {
		s.scheduleRetry(intent, res.Err)
	}
	s.current = nil
	s.checkQueue()
}

func (s *Scheduler) onValidateFinished(gen uint64, intent Intent, res pinning.Result, outcome pinning.ValidateOutcome) {
	s.inFlight = false
	if gen != s.generation {
		s.checkQueue()
		return
	}
	s.current = nil
	switch outcome {
	case pinning.ValidationError:
		s.scheduleRetry(intent, res.Err)
	case pinning.ValidationFailed:
		readd := intent
		readd.Operation = OpAdd
		readd.Attempt = 0
		s.enqueue(readd)
	}
	s.checkQueue()
}

// scheduleRetry re-offers intent after retryBase times its new attempt count.
func (s *Scheduler) scheduleRetry(intent Intent, cause *pinstore.PinError) {
	next := intent
	next.Attempt++
	delay := s.retryBase * time.Duration(next.Attempt)
	gen := s.generation

	s.startTimer(next.Path, delay, func() {
		if gen != s.generation {
			return
		}
		s.addOrExecute(next)
	})

	attrs := []logging.Attr{
		logging.String(logging.FieldTokenPath, next.Path),
		logging.String(logging.FieldOperation, next.Operation.String()),
		logging.Int(logging.FieldAttempt, next.Attempt),
		logging.Duration("delay", delay),
	}
	if cause != nil {
		attrs = append(attrs, logging.String("error_code", string(cause.Code)))
	}
	s.logger.Info("intent retry scheduled", logging.Args(attrs...)...)
}

// startTimer runs fn on the loop after delay unless the timer is cancelled
// first. A callback already posted when cancelled is discarded.
func (s *Scheduler) startTimer(path string, delay time.Duration, fn func()) {
	id := s.nextTimer
	s.nextTimer++
	timer := s.clock.AfterFunc(delay, func() {
		s.post(func() {
			if _, live := s.timers[id]; !live {
				return
			}
			delete(s.timers, id)
			fn()
		})
	})
	s.timers[id] = retryTimer{timer: timer, path: path}
}

func (s *Scheduler) stopTimers() {
	for id, pending := range s.timers {
		pending.timer.Stop()
		delete(s.timers, id)
	}
}
