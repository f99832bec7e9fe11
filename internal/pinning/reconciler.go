package pinning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
	"nftpin/internal/services"
)

// Result is the outcome of AddPin and RemovePin. Err may be set on success as
// an informational signal (AlreadyPinned).
type Result struct {
	Success bool
	Err     *pinstore.PinError
}

// ValidateOutcome classifies a validation run.
type ValidateOutcome int

const (
	// ValidationPassed means every CID is still pinned.
	ValidationPassed ValidateOutcome = iota
	// ValidationFailed means the token must be pinned again.
	ValidationFailed
	// ValidationError means the answer is unknown and the check should be retried.
	ValidationError
)

func (o ValidateOutcome) String() string {
	switch o {
	case ValidationPassed:
		return "passed"
	case ValidationFailed:
		return "failed"
	case ValidationError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reconciler performs single pin lifecycle operations.
type Reconciler struct {
	store   *pinstore.Store
	backend PinBackend
	meta    MetadataFetcher
	logger  *slog.Logger
}

// NewReconciler wires a reconciler to its collaborators.
func NewReconciler(store *pinstore.Store, backend PinBackend, meta MetadataFetcher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		backend: backend,
		meta:    meta,
		logger:  logging.NewComponentLogger(logger, "pinning"),
	}
}

// Store exposes the record store the reconciler writes to.
func (r *Reconciler) Store() *pinstore.Store {
	return r.store
}

// GetTokenStatus returns the persisted record for token.
func (r *Reconciler) GetTokenStatus(ctx context.Context, service string, token pinstore.TokenKey) pinstore.PinRecord {
	return r.store.Get(ctx, service, token)
}

// ListKnownTokenPaths returns every recorded path in the service namespace.
func (r *Reconciler) ListKnownTokenPaths(ctx context.Context, service string) (map[string]struct{}, error) {
	return r.store.ListKnownTokenPaths(ctx, service)
}

// MarkAsPendingForPinning records that an add is queued.
func (r *Reconciler) MarkAsPendingForPinning(ctx context.Context, service string, token pinstore.TokenKey) error {
	return r.store.Set(ctx, service, token, pinstore.StatusPinningPending, nil)
}

// MarkAsPendingForUnpinning records that a delete is queued.
func (r *Reconciler) MarkAsPendingForUnpinning(ctx context.Context, service string, token pinstore.TokenKey) error {
	return r.store.Set(ctx, service, token, pinstore.StatusUnpinningPending, nil)
}

// AddPin resolves the token's content and pins it.
func (r *Reconciler) AddPin(ctx context.Context, service string, token pinstore.TokenKey) Result {
	if !IsTokenSupported(token) {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodeWrongToken, "token cannot be pinned")}
	}
	path, err := pinstore.EncodePath(service, token)
	if err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodeWrongToken, err.Error())}
	}
	ctx = services.WithOperation(services.WithTokenPath(ctx, path), "add")
	logger := logging.WithContext(ctx, r.logger)

	if r.store.Get(ctx, service, token).Status == pinstore.StatusPinned {
		logger.Debug("token already pinned")
		return Result{Success: true, Err: pinstore.NewPinError(pinstore.ErrCodeAlreadyPinned, "")}
	}

	uri, body, err := r.meta.GetMetadata(ctx, token.ChainID, token.Contract, token.TokenID)
	if err != nil {
		return r.fail(ctx, logger, service, token, pinstore.NewPinError(pinstore.ErrCodeFetchMetadataFailed, err.Error()))
	}

	cids, pinErr := collectCIDs(uri, body)
	if pinErr != nil {
		return r.fail(ctx, logger, service, token, pinErr)
	}

	if err := r.store.AddCids(ctx, service, token, cids); err != nil {
		return r.fail(ctx, logger, service, token, pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error()))
	}
	if err := r.store.Set(ctx, service, token, pinstore.StatusPinningInProgress, nil); err != nil {
		return r.fail(ctx, logger, service, token, pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error()))
	}

	if err := r.backend.AddPins(ctx, path, cids); err != nil {
		return r.fail(ctx, logger, service, token, pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error()))
	}
	if err := r.store.Set(ctx, service, token, pinstore.StatusPinned, nil); err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}
	}
	logger.Info("token pinned", logging.Int("cid_count", len(cids)))
	return Result{Success: true}
}

// RemovePin unpins the token and deletes its record. Removing a token that
// has no record succeeds.
func (r *Reconciler) RemovePin(ctx context.Context, service string, token pinstore.TokenKey) Result {
	if !r.store.Exists(ctx, service, token) {
		return Result{Success: true}
	}
	path, err := pinstore.EncodePath(service, token)
	if err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodeWrongToken, err.Error())}
	}
	ctx = services.WithOperation(services.WithTokenPath(ctx, path), "delete")
	logger := logging.WithContext(ctx, r.logger)

	if err := r.store.Set(ctx, service, token, pinstore.StatusUnpinningInProgress, nil); err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}
	}
	if err := r.backend.RemovePins(ctx, path); err != nil {
		pinErr := pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())
		if setErr := r.store.Set(ctx, service, token, pinstore.StatusUnpinningFailed, pinErr); setErr != nil {
			logger.Debug("record unpin failure", logging.Error(setErr))
		}
		logging.WarnWithContext(logger, "unpin failed", "unpin_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the IPFS node is reachable"),
			logging.String(logging.FieldImpact, "content stays pinned until the retry succeeds"),
		)
		return Result{Err: pinErr}
	}
	if err := r.store.Remove(ctx, service, token); err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}
	}
	logger.Info("token unpinned")
	return Result{Success: true}
}

// Validate checks that a pinned token's content is still held by the backend.
// A record that is not pinned yields ValidationFailed with ErrCodeNotPinned,
// which the scheduler answers with a fresh add while the token is still held.
func (r *Reconciler) Validate(ctx context.Context, service string, token pinstore.TokenKey) (Result, ValidateOutcome) {
	record := r.store.Get(ctx, service, token)
	if record.Status != pinstore.StatusPinned {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodeNotPinned, "token is not pinned")}, ValidationFailed
	}
	path, err := pinstore.EncodePath(service, token)
	if err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodeWrongToken, err.Error())}, ValidationError
	}
	ctx = services.WithOperation(services.WithTokenPath(ctx, path), "validate")
	logger := logging.WithContext(ctx, r.logger)

	if len(record.CIDs) == 0 {
		if err := r.store.Set(ctx, service, token, pinstore.StatusPinningInProgress, nil); err != nil {
			return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}, ValidationError
		}
		logger.Info("pinned token has no recorded content, re-pinning")
		return Result{Success: true}, ValidationFailed
	}

	if service != "" {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, "validation is only supported for the local node")}, ValidationError
	}

	ok, err := r.backend.ValidatePins(ctx, path, record.CIDs)
	if err != nil {
		logging.WarnWithContext(logger, "pin validation inconclusive", "validate_unknown",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the IPFS node is reachable"),
			logging.String(logging.FieldImpact, "validation will be retried"),
		)
		return Result{}, ValidationError
	}
	if !ok {
		if err := r.store.Set(ctx, service, token, pinstore.StatusPinningInProgress, nil); err != nil {
			return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}, ValidationError
		}
		logger.Info("pinned content missing from node")
		return Result{Success: true}, ValidationFailed
	}
	if err := r.store.Set(ctx, service, token, pinstore.StatusPinned, nil); err != nil {
		return Result{Err: pinstore.NewPinError(pinstore.ErrCodePinningFailed, err.Error())}, ValidationError
	}
	logger.Debug("pin validated")
	return Result{Success: true}, ValidationPassed
}

// Restore lets the backend rebuild its state.
func (r *Reconciler) Restore(ctx context.Context) error {
	restorer, ok := r.backend.(Restorer)
	if !ok {
		return nil
	}
	if err := restorer.Restore(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "pinning", "restore", "backend restore failed", err)
	}
	return nil
}

// Reset unpins everything the backend owns and clears every record.
func (r *Reconciler) Reset(ctx context.Context) error {
	var errs []error
	if resetter, ok := r.backend.(Resetter); ok {
		if err := resetter.ResetAll(ctx); err != nil {
			errs = append(errs, services.Wrap(services.ErrTransient, "pinning", "reset", "backend reset failed", err))
		}
	} else {
		entries, err := r.store.ListRecords(ctx, "")
		if err != nil {
			errs = append(errs, err)
		}
		for _, entry := range entries {
			if err := r.backend.RemovePins(ctx, entry.Path); err != nil {
				errs = append(errs, fmt.Errorf("unpin %s: %w", entry.Path, err))
			}
		}
	}
	removed, err := r.store.Clear(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("pin records cleared", logging.Int64("removed", removed))
	return errors.Join(errs...)
}

func (r *Reconciler) fail(ctx context.Context, logger *slog.Logger, service string, token pinstore.TokenKey, pinErr *pinstore.PinError) Result {
	if err := r.store.Set(ctx, service, token, pinstore.StatusPinningFailed, pinErr); err != nil {
		logger.Debug("record pin failure", logging.Error(err))
	}
	logging.WarnWithContext(logger, "pin failed", "pin_failed",
		logging.String("error_code", string(pinErr.Code)),
		logging.String("error_message", pinErr.Message),
		logging.String(logging.FieldErrorHint, hintFor(pinErr.Code)),
		logging.String(logging.FieldImpact, "token content is not pinned"),
	)
	return Result{Err: pinErr}
}

func hintFor(code pinstore.ErrorCode) string {
	switch code {
	case pinstore.ErrCodeFetchMetadataFailed:
		return "check the chain RPC endpoint and metadata gateway"
	case pinstore.ErrCodeNonIPFSTokenURL:
		return "token metadata is not hosted on IPFS and will not be retried"
	case pinstore.ErrCodeWrongMetadataFormat:
		return "token metadata is not a JSON document"
	default:
		return "check that the IPFS node is reachable"
	}
}
