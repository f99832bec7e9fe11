package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nftpin/internal/config"
	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
)

// Observer turns record and auto-pin changes into notifications. It reports
// transitions only: a record re-stamped as pinned by validation stays quiet.
type Observer struct {
	service Service
	logger  *slog.Logger
	timeout time.Duration

	pinned      bool
	pinFailures bool
	autoPin     bool

	mu   sync.Mutex
	last map[string]pinstore.PinStatus
	wg   sync.WaitGroup
}

// NewObserver builds an observer honoring the [notifications] toggles in cfg.
func NewObserver(cfg *config.Config, service Service, logger *slog.Logger) *Observer {
	timeout := 10 * time.Second
	if cfg.Notifications.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	}
	return &Observer{
		service:     service,
		logger:      logging.NewComponentLogger(logger, "notifications"),
		timeout:     timeout,
		pinned:      cfg.Notifications.Pinned,
		pinFailures: cfg.Notifications.PinFailures,
		autoPin:     cfg.Notifications.AutoPinChanges,
		last:        make(map[string]pinstore.PinStatus),
	}
}

// Prime records the statuses already on disk so the first change after a
// restart is compared against them.
func (o *Observer) Prime(entries []pinstore.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, entry := range entries {
		o.last[entry.Path] = entry.Record.EffectiveStatus()
	}
}

// OnTokenStatusChanged implements pinstore.Observer.
func (o *Observer) OnTokenStatusChanged(service string, token pinstore.TokenKey, record pinstore.PinRecord) {
	path, err := pinstore.EncodePath(service, token)
	if err != nil {
		return
	}
	status := record.EffectiveStatus()

	o.mu.Lock()
	previous, seen := o.last[path]
	if status == pinstore.StatusNotPinned {
		delete(o.last, path)
	} else {
		o.last[path] = status
	}
	o.mu.Unlock()

	if seen && previous == status {
		return
	}
	switch status {
	case pinstore.StatusPinned:
		if o.pinned {
			cids := len(record.CIDs)
			o.dispatch("pinned", func(ctx context.Context) error {
				return o.service.NotifyPinned(ctx, path, cids)
			})
		}
	case pinstore.StatusPinningFailed:
		if o.pinFailures {
			var code, message string
			if record.Error != nil {
				code, message = string(record.Error.Code), record.Error.Message
			}
			o.dispatch("pin_failed", func(ctx context.Context) error {
				return o.service.NotifyPinFailed(ctx, path, code, message)
			})
		}
	case pinstore.StatusUnpinningFailed:
		if o.pinFailures {
			var message string
			if record.Error != nil {
				message = record.Error.Message
			}
			o.dispatch("unpin_failed", func(ctx context.Context) error {
				return o.service.NotifyUnpinFailed(ctx, path, message)
			})
		}
	}
}

// OnAutoPinStatusChanged implements autopin.Observer.
func (o *Observer) OnAutoPinStatusChanged(enabled bool) {
	if !o.autoPin {
		return
	}
	o.dispatch("autopin_changed", func(ctx context.Context) error {
		return o.service.NotifyAutoPinChanged(ctx, enabled)
	})
}

// Wait blocks until every in-flight notification has been sent or failed.
func (o *Observer) Wait() {
	o.wg.Wait()
}

// dispatch sends off the caller's goroutine; observers are invoked while the
// record store and scheduler are mid-operation.
func (o *Observer) dispatch(event string, send func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			logging.WarnWithContext(o.logger, "notification failed", "notification_failed",
				logging.String("notification", event),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ntfy_topic and network reachability"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}()
}
