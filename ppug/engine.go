package ppug

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE - Orchestration over a store
// =============================================================================

// Engine wires the pure derivation/aggregation functions to a store. It
// holds no per-station state; every call names the key it works on.
type Engine struct {
	store    TxStore
	averager *Averager
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(store TxStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, averager: NewAverager(store), logger: logger, now: time.Now}
}

// Resolver returns a resolver over the engine's store.
func (e *Engine) Resolver() *Resolver { return NewResolver(e.store, e.store) }

// OpenPeriod creates one empty entry per calendar day when nothing is stored
// for key yet, derived with the current configuration, and returns the
// stored entries.
func (e *Engine) OpenPeriod(ctx context.Context, key EntryKey) ([]DayEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var out []DayEntry
	err := e.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.LoadDayEntries(ctx, key)
		if err != nil {
			return fmt.Errorf("load entries %s: %w", key, err)
		}
		if len(existing) > 0 {
			out = existing
			return nil
		}
		resolved, err := NewResolver(tx, tx).Resolve(ctx, key.Station, key.Category, key.Shift)
		if err != nil {
			return err
		}
		out = EmptyEntries(key.Period)
		for i := range out {
			out[i].Derived = DeriveStored(out[i], key.Category, resolved.Config)
		}
		return tx.SaveDayEntries(ctx, key, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Entries returns the stored entries of key ordered by day.
func (e *Engine) Entries(ctx context.Context, key EntryKey) ([]DayEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return e.store.LoadDayEntries(ctx, key)
}

// SaveResult reports what a save wrote.
type SaveResult struct {
	Entries []DayEntry
	Config  Configuration
	Source  ConfigSource
}

// SaveEntries overwrites the given days of key, derives their persisted
// fields with the current configuration and records a snapshot of that
// configuration. With pause tracking enabled the gross time (raw + pause)
// is persisted.
func (e *Engine) SaveEntries(ctx context.Context, key EntryKey, entries []DayEntry) (SaveResult, error) {
	if err := key.Validate(); err != nil {
		return SaveResult{}, err
	}
	seen := make(map[int]bool, len(entries))
	for _, entry := range entries {
		if err := entry.Validate(key.Period); err != nil {
			return SaveResult{}, err
		}
		if seen[entry.Day] {
			return SaveResult{}, &DayError{Day: entry.Day, Reason: "duplicate day"}
		}
		seen[entry.Day] = true
	}

	var res SaveResult
	err := e.store.WithTx(ctx, func(tx Store) error {
		settings, err := tx.GetSettings(ctx, key.Station)
		if err != nil {
			return fmt.Errorf("load settings for %s: %w", key.Station, err)
		}
		resolved, err := NewResolver(tx, tx).Resolve(ctx, key.Station, key.Category, key.Shift)
		if err != nil {
			return err
		}

		prepared := make([]DayEntry, len(entries))
		for i, entry := range entries {
			if settings.PauseTracking {
				entry.Hours, entry.Minutes = ApplyPause(entry.Hours, entry.Minutes, entry.PauseHours, entry.PauseMinutes)
			} else {
				entry.PauseHours, entry.PauseMinutes = 0, 0
			}
			entry.Derived = DeriveStored(entry, key.Category, resolved.Config)
			prepared[i] = entry
		}
		sort.Slice(prepared, func(i, j int) bool { return prepared[i].Day < prepared[j].Day })

		if err := tx.SaveDayEntries(ctx, key, prepared); err != nil {
			return fmt.Errorf("save entries %s: %w", key, err)
		}
		if err := tx.SaveSnapshot(ctx, e.newSnapshot(key, resolved.Config)); err != nil {
			return fmt.Errorf("record snapshot %s: %w", key, err)
		}
		res = SaveResult{Entries: prepared, Config: resolved.Config, Source: resolved.Source}
		return nil
	})
	if err != nil {
		e.logger.Error("save entries failed", zap.Stringer("key", key), zap.Error(err))
		return SaveResult{}, err
	}

	e.logger.Info("entries saved",
		zap.Stringer("key", key),
		zap.Int("days", len(res.Entries)),
		zap.String("config_source", string(res.Source)),
	)
	return res, nil
}

// ClearEntries deletes every entry of key. Snapshots are kept.
func (e *Engine) ClearEntries(ctx context.Context, key EntryKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := e.store.DeleteDayEntries(ctx, key); err != nil {
		return fmt.Errorf("delete entries %s: %w", key, err)
	}
	e.logger.Info("entries cleared", zap.Stringer("key", key))
	return nil
}

// MonthlyReport evaluates key with the configuration that applied to its
// period. PFK reports pull the PHK hours of the same station/period/shift.
func (e *Engine) MonthlyReport(ctx context.Context, key EntryKey) (MonthlyReport, ResolvedConfig, error) {
	if err := key.Validate(); err != nil {
		return MonthlyReport{}, ResolvedConfig{}, err
	}
	entries, err := e.store.LoadDayEntries(ctx, key)
	if err != nil {
		return MonthlyReport{}, ResolvedConfig{}, fmt.Errorf("load entries %s: %w", key, err)
	}
	resolved, err := e.Resolver().ResolveAsOf(ctx, key.Station, key.Category, key.Shift, key.Period)
	if err != nil {
		return MonthlyReport{}, ResolvedConfig{}, err
	}
	occupancy, err := e.averager.Month(ctx, key.Station, key.Period, key.Shift)
	if err != nil {
		return MonthlyReport{}, ResolvedConfig{}, err
	}
	e.logger.Debug("bed occupancy loaded",
		zap.Stringer("key", key),
		zap.Int("days_with_data", occupancy.DaysWithData),
	)
	var substitute map[int]float64
	if key.Category == CategoryPrimary {
		substitute, err = e.store.LoadSubstituteHours(ctx, key.Station, key.Period, key.Shift)
		if err != nil {
			return MonthlyReport{}, ResolvedConfig{}, fmt.Errorf("load substitute hours %s: %w", key, err)
		}
	}

	report := EvaluateMonth(MonthInput{
		Key:             key,
		Config:          resolved.Config,
		Entries:         entries,
		Occupancy:       occupancy.Records,
		SubstituteHours: substitute,
	})
	return report, resolved, nil
}

func (e *Engine) newSnapshot(key EntryKey, cfg Configuration) ConfigSnapshot {
	return ConfigSnapshot{
		ID:         uuid.NewString(),
		Key:        key,
		Config:     cfg,
		RecordedAt: e.now().UTC(),
	}
}
