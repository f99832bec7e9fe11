package autopin

import (
	"sort"
	"time"

	"nftpin/internal/logging"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
)

// restore clears the known set and fetches the inventory off the loop. The
// reconciliation pass runs back on the loop as one step.
func (s *Scheduler) restore() {
	s.known = make(map[string]pinstore.TokenKey)
	s.restoring = true
	gen := s.generation
	ctx := s.ctx

	go func() {
		if err := s.pins.Restore(ctx); err != nil {
			logging.WarnWithContext(s.logger, "pin backend restore failed", "backend_restore_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the IPFS node is reachable"),
				logging.String(logging.FieldImpact, "local pin bookkeeping may be stale"),
			)
		}
		tokens, err := s.inventory.GetAllUserTokens(ctx)
		s.post(func() { s.onTokenListResolved(gen, tokens, err) })
	}()
}

func (s *Scheduler) onTokenListResolved(gen uint64, tokens []pinstore.TokenKey, fetchErr error) {
	if gen != s.generation || !s.enabled {
		return
	}
	s.restoring = false
	if fetchErr != nil {
		logging.WarnWithContext(s.logger, "token inventory unavailable", "inventory_fetch_failed",
			logging.Error(fetchErr),
			logging.String(logging.FieldErrorHint, "check the inventory file"),
			logging.String(logging.FieldImpact, "reconciliation retried later"),
			logging.Duration("retry_in", s.retryBase),
		)
		s.scheduleRestore(gen)
		return
	}

	knownPaths, err := s.pins.ListKnownTokenPaths(s.ctx, "")
	if err != nil {
		logging.WarnWithContext(s.logger, "pin records unreadable", "pin_records_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the preference store"),
			logging.String(logging.FieldImpact, "tokens that were sold or transferred stay pinned until the next restore"),
		)
		knownPaths = map[string]struct{}{}
	}

	now := s.clock.Now()
	seen := make(map[string]struct{}, len(tokens))
	var added, validated int
	for _, token := range tokens {
		if !pinning.IsTokenSupported(token) {
			continue
		}
		add, err := newIntent("", token, OpAdd)
		if err != nil {
			continue
		}
		if _, dup := seen[add.Path]; dup {
			continue
		}
		seen[add.Path] = struct{}{}
		_, persisted := knownPaths[add.Path]
		delete(knownPaths, add.Path)
		s.known[add.Path] = token

		if !persisted {
			if s.enqueue(add) {
				added++
			}
			continue
		}
		record := s.pins.GetTokenStatus(s.ctx, "", token)
		switch record.Status {
		case pinstore.StatusPinned:
			if s.needsValidation(record, now) {
				validate := add
				validate.Operation = OpValidate
				if s.enqueue(validate) {
					validated++
				}
			}
		case pinstore.StatusPinningFailed:
			if record.Error.Retryable() && s.enqueue(add) {
				added++
			}
		default:
			if s.enqueue(add) {
				added++
			}
		}
	}

	// Queued adds and validations for tokens no longer held would otherwise
	// run ahead of the deletes planned below.
	s.filterQueue(func(queued Intent) bool {
		if queued.Operation == OpDelete {
			return true
		}
		_, held := s.known[queued.Path]
		return held
	})

	leftovers := make([]string, 0, len(knownPaths))
	for path := range knownPaths {
		leftovers = append(leftovers, path)
	}
	sort.Strings(leftovers)
	var deleted int
	for _, path := range leftovers {
		service, token, err := pinstore.DecodePath(path)
		if err != nil {
			s.logger.Debug("skipping undecodable pin path", logging.String(logging.FieldTokenPath, path), logging.Error(err))
			continue
		}
		if s.enqueue(Intent{Token: token, Path: path, Service: service, Operation: OpDelete}) {
			deleted++
		}
	}

	s.logger.Info("reconciliation planned",
		logging.Int("tokens", len(seen)),
		logging.Int("add", added),
		logging.Int("validate", validated),
		logging.Int("delete", deleted),
	)
	s.checkQueue()
}

// needsValidation is true when the last validation is older than the
// interval, missing, or in the future.
func (s *Scheduler) needsValidation(record pinstore.PinRecord, now time.Time) bool {
	if record.LastValidated == nil {
		return true
	}
	last := *record.LastValidated
	return last.After(now) || now.Sub(last) > s.validateInterval
}

func (s *Scheduler) scheduleRestore(gen uint64) {
	s.startTimer("", s.retryBase, func() {
		if gen != s.generation || !s.enabled {
			return
		}
		s.restore()
	})
}
