package ppug

import (
	"context"
	"fmt"
)

// =============================================================================
// CONFIG RESOLVER - Priority-ordered configuration lookup
// =============================================================================

// ConfigSource tags where a resolved configuration came from.
type ConfigSource string

const (
	SourceOverride ConfigSource = "override"
	SourceSnapshot ConfigSource = "snapshot"
	SourceDefault  ConfigSource = "default"
)

// ResolvedConfig is a fully-resolved configuration. Derivation and
// aggregation only ever see Config; they never apply defaults themselves.
type ResolvedConfig struct {
	Config         Configuration
	Source         ConfigSource
	FromSnapshot   bool
	SnapshotPeriod *Period
	Message        string
}

// Resolver applies the precedence snapshot > override > default.
type Resolver struct {
	overrides OverrideStore
	snapshots SnapshotStore
}

func NewResolver(overrides OverrideStore, snapshots SnapshotStore) *Resolver {
	return &Resolver{overrides: overrides, snapshots: snapshots}
}

// Resolve returns the current configuration: the station override if one
// exists, else the global default.
func (r *Resolver) Resolve(ctx context.Context, station StationID, category Category, shift Shift) (ResolvedConfig, error) {
	var override *Configuration
	if r.overrides != nil {
		o, err := r.overrides.GetOverride(ctx, station, category, shift)
		if err != nil {
			return ResolvedConfig{}, fmt.Errorf("load override for %s %s/%s: %w", station, category, shift, err)
		}
		override = o
	}
	if override != nil {
		return ResolvedConfig{Config: complete(*override, category, shift), Source: SourceOverride}, nil
	}
	return ResolvedConfig{Config: DefaultConfiguration(category, shift), Source: SourceDefault}, nil
}

// ResolveAsOf returns the configuration that applied to a past period: the
// latest snapshot at or before it, else the current override, else defaults.
func (r *Resolver) ResolveAsOf(ctx context.Context, station StationID, category Category, shift Shift, period Period) (ResolvedConfig, error) {
	if r.snapshots != nil {
		key := EntryKey{Station: station, Period: period, Category: category, Shift: shift}
		found, err := LookupSnapshot(ctx, r.snapshots, key)
		if err != nil {
			return ResolvedConfig{}, err
		}
		if found.FromSnapshot {
			p := found.SnapshotPeriod
			return ResolvedConfig{
				Config:         found.Config,
				Source:         SourceSnapshot,
				FromSnapshot:   true,
				SnapshotPeriod: &p,
				Message:        found.Message,
			}, nil
		}
	}

	current, err := r.Resolve(ctx, station, category, shift)
	if err != nil {
		return ResolvedConfig{}, err
	}
	switch current.Source {
	case SourceOverride:
		current.Message = fmt.Sprintf("no configuration recorded up to %s, showing the current station configuration", period)
	default:
		current.Message = fmt.Sprintf("no configuration recorded up to %s, showing defaults", period)
	}
	return current, nil
}

// WithEdit resolves the current configuration and applies a caller edit.
// Invalid edit fields are ignored and reported.
func (r *Resolver) WithEdit(ctx context.Context, station StationID, category Category, shift Shift, edit *ConfigEdit) (ResolvedConfig, []FieldRejection, error) {
	resolved, err := r.Resolve(ctx, station, category, shift)
	if err != nil {
		return ResolvedConfig{}, nil, err
	}
	if edit == nil || edit.IsEmpty() {
		return resolved, nil, nil
	}
	cfg, rejected := ApplyEdit(resolved.Config, *edit)
	if !cfg.Equal(resolved.Config) {
		resolved.Source = SourceOverride
	}
	resolved.Config = cfg
	return resolved, rejected, nil
}

// UpdateOverride applies edit to the current configuration and stores the
// result as the station override. Rejected fields keep their prior value.
func (r *Resolver) UpdateOverride(ctx context.Context, station StationID, category Category, shift Shift, edit ConfigEdit) (Configuration, []FieldRejection, error) {
	if r.overrides == nil {
		return Configuration{}, nil, fmt.Errorf("no override store configured")
	}
	resolved, err := r.Resolve(ctx, station, category, shift)
	if err != nil {
		return Configuration{}, nil, err
	}
	cfg, rejected := ApplyEdit(resolved.Config, edit)
	if err := r.overrides.SaveOverride(ctx, station, category, shift, cfg); err != nil {
		return Configuration{}, nil, fmt.Errorf("save override for %s %s/%s: %w", station, category, shift, err)
	}
	return cfg, rejected, nil
}

// complete fills values that are absent or invalid in stored data from the
// defaults, so every resolved configuration satisfies the invariant.
func complete(cfg Configuration, category Category, shift Shift) Configuration {
	def := DefaultConfiguration(category, shift)
	if !IsValidValue(cfg.ShiftHours) {
		cfg.ShiftHours = def.ShiftHours
	}
	if !IsValidValue(cfg.PPRatioBase) {
		cfg.PPRatioBase = def.PPRatioBase
	}
	switch {
	case category != CategoryPrimary:
		cfg.SubstitutionBaseFactor = nil
	case cfg.SubstitutionBaseFactor == nil || !IsValidValue(*cfg.SubstitutionBaseFactor):
		cfg.SubstitutionBaseFactor = def.SubstitutionBaseFactor
	}
	return cfg
}
