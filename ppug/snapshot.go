package ppug

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// CONFIG SNAPSHOT - Configuration frozen at save time
// =============================================================================

// ConfigSnapshot records the configuration in effect when entries for Key
// were saved. Snapshots are never mutated; a later save for the same key
// replaces the record, later periods get their own record.
type ConfigSnapshot struct {
	ID         string
	Key        EntryKey
	Config     Configuration
	RecordedAt time.Time
}

// SnapshotLookup is the result of LookupSnapshot.
type SnapshotLookup struct {
	Config       Configuration
	FromSnapshot bool
	// Period of the snapshot used; zero when FromSnapshot is false.
	SnapshotPeriod Period
	Exact          bool
	Message        string
}

// LookupSnapshot returns the snapshot for the exact key, else the most
// recent earlier one for the same station/category/shift, else the defaults
// with FromSnapshot=false. Values missing from a stored snapshot are filled
// from the defaults.
func LookupSnapshot(ctx context.Context, store SnapshotStore, key EntryKey) (SnapshotLookup, error) {
	snap, err := store.LatestSnapshot(ctx, key.Station, key.Category, key.Shift, key.Period)
	if err != nil {
		return SnapshotLookup{}, fmt.Errorf("lookup snapshot %s: %w", key, err)
	}
	if snap == nil {
		return SnapshotLookup{
			Config:  DefaultConfiguration(key.Category, key.Shift),
			Message: fmt.Sprintf("no configuration recorded up to %s, showing defaults", key.Period),
		}, nil
	}

	out := SnapshotLookup{
		Config:         complete(snap.Config, key.Category, key.Shift),
		FromSnapshot:   true,
		SnapshotPeriod: snap.Key.Period,
		Exact:          snap.Key.Period == key.Period,
	}
	if !out.Exact {
		out.Message = fmt.Sprintf("no configuration recorded for %s, using the one from %s", key.Period, snap.Key.Period)
	}
	return out, nil
}
