package autopin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"nftpin/internal/autopin"
	"nftpin/internal/logging"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
	"nftpin/internal/prefs"
)

func nft(id string) pinstore.TokenKey {
	return pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: id, IsNFT: true}
}

func pathOf(t *testing.T, token pinstore.TokenKey) string {
	t.Helper()
	path, err := pinstore.EncodePath("", token)
	if err != nil {
		t.Fatalf("EncodePath: %v", err)
	}
	return path
}

type reply struct {
	res     pinning.Result
	outcome pinning.ValidateOutcome
}

type call struct {
	op    autopin.Operation
	path  string
	reply chan reply
	// settle blocks until the scheduler has handled the reply.
	settle func()
}

func (c call) answer(r reply) {
	c.reply <- r
	if c.settle != nil {
		c.settle()
	}
}

func (c call) succeed() { c.answer(reply{res: pinning.Result{Success: true}}) }

func (c call) fail(code pinstore.ErrorCode) {
	c.answer(reply{res: pinning.Result{Err: pinstore.NewPinError(code, "test failure")}})
}

func (c call) validated(outcome pinning.ValidateOutcome) {
	res := pinning.Result{Success: outcome != pinning.ValidationError}
	c.answer(reply{res: res, outcome: outcome})
}

type fakePinner struct {
	mu         sync.Mutex
	records    map[string]pinstore.PinRecord
	calls      chan call
	resetCalls int
	restores   int
}

func newFakePinner() *fakePinner {
	return &fakePinner{
		records: make(map[string]pinstore.PinRecord),
		calls:   make(chan call, 16),
	}
}

func (f *fakePinner) seed(t *testing.T, token pinstore.TokenKey, record pinstore.PinRecord) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[pathOf(t, token)] = record
}

func (f *fakePinner) status(t *testing.T, token pinstore.TokenKey) pinstore.PinStatus {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[pathOf(t, token)]
	if !ok {
		return pinstore.StatusNotPinned
	}
	return record.Status
}

func (f *fakePinner) invoke(op autopin.Operation, token pinstore.TokenKey) reply {
	path, _ := pinstore.EncodePath("", token)
	c := call{op: op, path: path, reply: make(chan reply, 1)}
	f.calls <- c
	return <-c.reply
}

func (f *fakePinner) AddPin(_ context.Context, _ string, token pinstore.TokenKey) pinning.Result {
	return f.invoke(autopin.OpAdd, token).res
}

func (f *fakePinner) RemovePin(_ context.Context, _ string, token pinstore.TokenKey) pinning.Result {
	return f.invoke(autopin.OpDelete, token).res
}

func (f *fakePinner) Validate(_ context.Context, _ string, token pinstore.TokenKey) (pinning.Result, pinning.ValidateOutcome) {
	r := f.invoke(autopin.OpValidate, token)
	return r.res, r.outcome
}

func (f *fakePinner) setStatus(token pinstore.TokenKey, status pinstore.PinStatus) error {
	path, err := pinstore.EncodePath("", token)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record := f.records[path]
	record.Status = status
	f.records[path] = record
	return nil
}

func (f *fakePinner) MarkAsPendingForPinning(_ context.Context, _ string, token pinstore.TokenKey) error {
	return f.setStatus(token, pinstore.StatusPinningPending)
}

func (f *fakePinner) MarkAsPendingForUnpinning(_ context.Context, _ string, token pinstore.TokenKey) error {
	return f.setStatus(token, pinstore.StatusUnpinningPending)
}

func (f *fakePinner) GetTokenStatus(_ context.Context, _ string, token pinstore.TokenKey) pinstore.PinRecord {
	path, _ := pinstore.EncodePath("", token)
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[path]
	if !ok {
		return pinstore.PinRecord{Status: pinstore.StatusNotPinned}
	}
	return record
}

func (f *fakePinner) ListKnownTokenPaths(context.Context, string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.records))
	for path := range f.records {
		out[path] = struct{}{}
	}
	return out, nil
}

func (f *fakePinner) Restore(context.Context) error {
	f.mu.Lock()
	f.restores++
	f.mu.Unlock()
	return nil
}

func (f *fakePinner) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	f.records = make(map[string]pinstore.PinRecord)
	return nil
}

type fakeInventory struct {
	mu     sync.Mutex
	tokens []pinstore.TokenKey
	err    error
}

func (f *fakeInventory) GetAllUserTokens(context.Context) ([]pinstore.TokenKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]pinstore.TokenKey(nil), f.tokens...), nil
}

func (f *fakeInventory) set(tokens []pinstore.TokenKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = tokens
	f.err = err
}

type pendingTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*pendingTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) autopin.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &pendingTimer{delay: d, fn: f}
	c.timers = append(c.timers, timer)
	return &fakeTimerHandle{clock: c, timer: timer}
}

// fireNext runs the oldest pending timer and returns its delay.
func (c *fakeClock) fireNext(t *testing.T) time.Duration {
	t.Helper()
	c.mu.Lock()
	var next *pendingTimer
	for i, timer := range c.timers {
		if !timer.stopped {
			next = timer
			c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if next == nil {
		t.Fatal("no pending timer")
	}
	next.fn()
	return next.delay
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

type fakeTimerHandle struct {
	clock *fakeClock
	timer *pendingTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	was := !h.timer.stopped
	h.timer.stopped = true
	return was
}

type env struct {
	sched     *autopin.Scheduler
	pins      *fakePinner
	inventory *fakeInventory
	clock     *fakeClock
	prefs     *prefs.MemoryStore
}

type envOption func(*env, *autopin.Options)

func withEnabledDefault(enabled bool) envOption {
	return func(_ *env, o *autopin.Options) { o.DefaultEnabled = enabled }
}

func withTokens(tokens ...pinstore.TokenKey) envOption {
	return func(e *env, _ *autopin.Options) { e.inventory.tokens = tokens }
}

func newEnv(t *testing.T, setup func(*env), opts ...envOption) *env {
	t.Helper()
	e := &env{
		pins:      newFakePinner(),
		inventory: &fakeInventory{},
		clock:     &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		prefs:     prefs.NewMemory(),
	}
	options := autopin.Options{
		Logger:           logging.NewNop(),
		DefaultEnabled:   true,
		ValidateInterval: 24 * time.Hour,
		RetryBase:        2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e, &options)
	}
	if setup != nil {
		setup(e)
	}
	options.Pinner = e.pins
	options.Inventory = e.inventory
	options.Prefs = e.prefs
	options.Clock = e.clock
	e.sched = autopin.New(options)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.sched.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		e.drain()
		<-done
	})
	e.waitRestored(t)
	return e
}

// waitRestored blocks until the start-up inventory fetch has been applied.
func (e *env) waitRestored(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.snapshot(t).Restoring {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for restore")
		}
		time.Sleep(time.Millisecond)
	}
}

// drain answers any backend call still blocked so goroutines can exit.
func (e *env) drain() {
	for {
		select {
		case c := <-e.pins.calls:
			c.reply <- reply{res: pinning.Result{Success: true}}
		default:
			return
		}
	}
}

func (e *env) snapshot(t *testing.T) autopin.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := e.sched.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return state
}

func (e *env) expectCall(t *testing.T, op autopin.Operation, token pinstore.TokenKey) call {
	t.Helper()
	select {
	case c := <-e.pins.calls:
		if c.op != op || c.path != pathOf(t, token) {
			t.Fatalf("got %s(%s), want %s(%s)", c.op, c.path, op, pathOf(t, token))
		}
		c.settle = func() { e.waitFinished(t, c.op, c.path) }
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s(%s)", op, pathOf(t, token))
	}
	return call{}
}

// waitFinished blocks until the scheduler no longer has op(path) in flight,
// so its completion handling is visible to the next snapshot.
func (e *env) waitFinished(t *testing.T, op autopin.Operation, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state := e.snapshot(t)
		cur := state.Current
		if !state.InFlight || (cur != nil && (cur.Operation != op || cur.Path != path)) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s(%s) to finish", op, path)
		}
		time.Sleep(time.Millisecond)
	}
}

func (e *env) expectNoCall(t *testing.T) {
	t.Helper()
	e.snapshot(t)
	select {
	case c := <-e.pins.calls:
		t.Fatalf("unexpected backend call %s(%s)", c.op, c.path)
	case <-time.After(50 * time.Millisecond):
	}
}

func queueOps(state autopin.State) []string {
	out := make([]string, 0, len(state.Queue))
	for _, intent := range state.Queue {
		out = append(out, intent.String())
	}
	return out
}
