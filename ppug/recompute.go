package ppug

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// RECOMPUTE - Reapply a configuration to persisted entries
// =============================================================================

// RecomputeState is the state of one recompute invocation.
//
//	idle -> loading -> deriving -> persisting -> done
//	              \-------------\-----------\-> failed
type RecomputeState string

const (
	StateIdle       RecomputeState = "idle"
	StateLoading    RecomputeState = "loading"
	StateDeriving   RecomputeState = "deriving"
	StatePersisting RecomputeState = "persisting"
	StateDone       RecomputeState = "done"
	StateFailed     RecomputeState = "failed"
)

// RecomputeResult reports the outcome of a recompute.
type RecomputeResult struct {
	Key          EntryKey
	State        RecomputeState
	Transitions  []RecomputeState
	TotalEntries int
	UpdatedCount int
	Config       Configuration
	Source       ConfigSource
	Rejected     []FieldRejection
	// Reason is set when State is failed.
	Reason  string
	Message string
}

func (r *RecomputeResult) transition(s RecomputeState) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

func (r *RecomputeResult) fail(reason string) {
	r.transition(StateFailed)
	r.Reason = reason
	r.Message = fmt.Sprintf("recompute of %s failed: %s", r.Key, reason)
}

// Recompute loads the stored entries of key, resolves the configuration
// (applying edit, whose invalid fields are ignored), derives every day
// again and writes the derived fields back in one transaction. Raw hours
// and minutes are never modified.
//
// When nothing is stored the result is failed with ErrNoEntries. Store
// errors are returned wrapped and never reported as "no data".
func (e *Engine) Recompute(ctx context.Context, key EntryKey, edit *ConfigEdit) (RecomputeResult, error) {
	res := RecomputeResult{Key: key}
	res.transition(StateIdle)

	if err := key.Validate(); err != nil {
		res.fail(err.Error())
		return res, err
	}

	err := e.store.WithTx(ctx, func(tx Store) error {
		res.transition(StateLoading)
		entries, err := tx.LoadDayEntries(ctx, key)
		if err != nil {
			return fmt.Errorf("load entries %s: %w", key, err)
		}
		if len(entries) == 0 {
			return ErrNoEntries
		}
		res.TotalEntries = len(entries)

		resolved, rejected, err := NewResolver(tx, tx).WithEdit(ctx, key.Station, key.Category, key.Shift, edit)
		if err != nil {
			return err
		}
		res.Config = resolved.Config
		res.Source = resolved.Source
		res.Rejected = rejected

		res.transition(StateDeriving)
		updated := make([]DayEntry, len(entries))
		for i, entry := range entries {
			derived := DeriveStored(entry, key.Category, resolved.Config)
			if !derived.Equal(entry.Derived) {
				res.UpdatedCount++
			}
			entry.Derived = derived
			updated[i] = entry
		}

		res.transition(StatePersisting)
		if err := tx.SaveDayEntries(ctx, key, updated); err != nil {
			return fmt.Errorf("persist entries %s: %w", key, err)
		}
		if err := tx.SaveSnapshot(ctx, e.newSnapshot(key, resolved.Config)); err != nil {
			return fmt.Errorf("record snapshot %s: %w", key, err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrNoEntries) {
			res.fail(ErrNoEntries.Error())
			e.logger.Info("recompute found no entries", zap.Stringer("key", key))
		} else {
			res.fail(err.Error())
			e.logger.Error("recompute failed", zap.Stringer("key", key), zap.Error(err))
		}
		res.UpdatedCount = 0
		return res, err
	}

	res.transition(StateDone)
	res.Message = fmt.Sprintf("recomputed %d of %d entries for %s (shift hours %g, ratio base %g)",
		res.UpdatedCount, res.TotalEntries, key, res.Config.ShiftHours, res.Config.PPRatioBase)
	if len(res.Rejected) > 0 {
		res.Message += fmt.Sprintf("; ignored %d invalid override(s)", len(res.Rejected))
	}
	e.logger.Info("recompute done",
		zap.Stringer("key", key),
		zap.Int("updated", res.UpdatedCount),
		zap.Int("total", res.TotalEntries),
		zap.String("config_source", string(res.Source)),
	)
	return res, nil
}
