/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the pure engine and its collaborators: the
  store holding day entries, station overrides and configuration snapshots,
  and the source of bed-occupancy figures. The engine treats every call as a
  possibly latent function call; timeouts and retries belong to the caller.

KEY INTERFACES:
  EntryStore:            load/save/delete a month of day entries
  OverrideStore:         station-specific configuration overrides
  SnapshotStore:         configuration in effect at save time, per period
  SettingsStore:         per-station switches (pause tracking)
  OccupancySource:       daily bed occupancy, read-only to the engine
  SubstituteHoursSource: PHK hours per day for one station/period/shift
  TxStore:               all of the above plus an atomic WithTx

ATOMIC WRITES:
  Save and recompute run load-then-persist inside WithTx. A failure between
  deriving and persisting leaves the previously stored derived fields as
  they were; no partial per-day writes.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ppug/store/memory.go: in-memory, for tests and development
*/
package ppug

import "context"

// =============================================================================
// ENTRY STORE
// =============================================================================

// EntryStore persists day entries per key.
type EntryStore interface {
	// LoadDayEntries returns the stored entries ordered by day. An empty
	// result with a nil error means nothing is stored for the key.
	LoadDayEntries(ctx context.Context, key EntryKey) ([]DayEntry, error)

	// SaveDayEntries overwrites the given days of the key.
	SaveDayEntries(ctx context.Context, key EntryKey, entries []DayEntry) error

	// DeleteDayEntries removes every entry of the key.
	DeleteDayEntries(ctx context.Context, key EntryKey) error
}

// =============================================================================
// CONFIGURATION STORES
// =============================================================================

type OverrideStore interface {
	// GetOverride returns nil, nil when the station has no override.
	GetOverride(ctx context.Context, station StationID, category Category, shift Shift) (*Configuration, error)
	SaveOverride(ctx context.Context, station StationID, category Category, shift Shift, cfg Configuration) error
}

// SnapshotStore records the configuration used at save time.
type SnapshotStore interface {
	// SaveSnapshot upserts the snapshot for its key.
	SaveSnapshot(ctx context.Context, snap ConfigSnapshot) error

	// LatestSnapshot returns the snapshot with the greatest period at or
	// before atOrBefore, or nil, nil when none exists.
	LatestSnapshot(ctx context.Context, station StationID, category Category, shift Shift, atOrBefore Period) (*ConfigSnapshot, error)
}

type SettingsStore interface {
	// GetSettings returns zero-value settings for unknown stations.
	GetSettings(ctx context.Context, station StationID) (StationSettings, error)
	SaveSettings(ctx context.Context, settings StationSettings) error
}

// =============================================================================
// READ-ONLY SOURCES
// =============================================================================

// OccupancySource provides one occupancy record per calendar day.
type OccupancySource interface {
	LoadBedOccupancy(ctx context.Context, station StationID, period Period) (map[int]BedOccupancy, error)
}

// SubstituteHoursSource provides the PHK decimal hours per day.
type SubstituteHoursSource interface {
	LoadSubstituteHours(ctx context.Context, station StationID, period Period, shift Shift) (map[int]float64, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is everything the engine reads and writes.
type Store interface {
	EntryStore
	OverrideStore
	SnapshotStore
	SettingsStore
	OccupancySource
	SubstituteHoursSource
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// SubstituteHoursFromEntries converts PHK entries into the day -> decimal hours
// series. Days without recorded time are omitted.
func SubstituteHoursFromEntries(entries []DayEntry) map[int]float64 {
	hours := make(map[int]float64, len(entries))
	for _, e := range entries {
		if e.IsEmpty() {
			continue
		}
		hours[e.Day] = e.HoursDecimal()
	}
	return hours
}
