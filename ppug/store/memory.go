// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/staffing-engine/ppug"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data memoryData
}

type configKey struct {
	Station  ppug.StationID
	Category ppug.Category
	Shift    ppug.Shift
}

type occupancyKey struct {
	Station ppug.StationID
	Period  ppug.Period
}

type memoryData struct {
	entries   map[ppug.EntryKey]map[int]ppug.DayEntry
	overrides map[configKey]ppug.Configuration
	snapshots map[ppug.EntryKey]ppug.ConfigSnapshot
	settings  map[ppug.StationID]ppug.StationSettings
	occupancy map[occupancyKey]map[int]ppug.BedOccupancy
}

func newMemoryData() memoryData {
	return memoryData{
		entries:   make(map[ppug.EntryKey]map[int]ppug.DayEntry),
		overrides: make(map[configKey]ppug.Configuration),
		snapshots: make(map[ppug.EntryKey]ppug.ConfigSnapshot),
		settings:  make(map[ppug.StationID]ppug.StationSettings),
		occupancy: make(map[occupancyKey]map[int]ppug.BedOccupancy),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

var _ ppug.TxStore = (*Memory)(nil)

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) LoadDayEntries(_ context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.loadEntries(key), nil
}

func (m *Memory) SaveDayEntries(_ context.Context, key ppug.EntryKey, entries []ppug.DayEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveEntries(key, entries)
	return nil
}

func (m *Memory) DeleteDayEntries(_ context.Context, key ppug.EntryKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.entries, key)
	return nil
}

func (m *Memory) LoadSubstituteHours(_ context.Context, station ppug.StationID, period ppug.Period, shift ppug.Shift) (map[int]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := ppug.EntryKey{Station: station, Period: period, Category: ppug.CategorySubstitute, Shift: shift}
	return ppug.SubstituteHoursFromEntries(m.data.loadEntries(key)), nil
}

func (d memoryData) loadEntries(key ppug.EntryKey) []ppug.DayEntry {
	days := d.entries[key]
	result := make([]ppug.DayEntry, 0, len(days))
	for _, e := range days {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result
}

func (d memoryData) saveEntries(key ppug.EntryKey, entries []ppug.DayEntry) {
	days := d.entries[key]
	if days == nil {
		days = make(map[int]ppug.DayEntry, len(entries))
		d.entries[key] = days
	}
	for _, e := range entries {
		days[e.Day] = e
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (m *Memory) GetOverride(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift) (*ppug.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getOverride(configKey{station, category, shift}), nil
}

func (m *Memory) SaveOverride(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, cfg ppug.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.overrides[configKey{station, category, shift}] = cfg
	return nil
}

func (d memoryData) getOverride(k configKey) *ppug.Configuration {
	cfg, ok := d.overrides[k]
	if !ok {
		return nil
	}
	return &cfg
}

func (m *Memory) SaveSnapshot(_ context.Context, snap ppug.ConfigSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.snapshots[snap.Key] = snap
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, atOrBefore ppug.Period) (*ppug.ConfigSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.latestSnapshot(station, category, shift, atOrBefore), nil
}

func (d memoryData) latestSnapshot(station ppug.StationID, category ppug.Category, shift ppug.Shift, atOrBefore ppug.Period) *ppug.ConfigSnapshot {
	var best *ppug.ConfigSnapshot
	for k, snap := range d.snapshots {
		if k.Station != station || k.Category != category || k.Shift != shift {
			continue
		}
		if !k.Period.BeforeOrEqual(atOrBefore) {
			continue
		}
		if best == nil || best.Key.Period.Before(k.Period) {
			s := snap
			best = &s
		}
	}
	return best
}

func (m *Memory) GetSettings(_ context.Context, station ppug.StationID) (ppug.StationSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getSettings(station), nil
}

func (m *Memory) SaveSettings(_ context.Context, s ppug.StationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.settings[s.Station] = s
	return nil
}

func (d memoryData) getSettings(station ppug.StationID) ppug.StationSettings {
	s, ok := d.settings[station]
	if !ok {
		return ppug.StationSettings{Station: station}
	}
	return s
}

// =============================================================================
// BED OCCUPANCY
// =============================================================================

func (m *Memory) LoadBedOccupancy(_ context.Context, station ppug.StationID, period ppug.Period) (map[int]ppug.BedOccupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.loadOccupancy(station, period), nil
}

// SaveBedOccupancy stores occupancy records for days of a period.
func (m *Memory) SaveBedOccupancy(_ context.Context, station ppug.StationID, period ppug.Period, records map[int]ppug.BedOccupancy) error {
	for d := range records {
		if !period.Contains(d) {
			return fmt.Errorf("%w: occupancy day %d outside %s", ppug.ErrInvalidDay, d, period)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := occupancyKey{station, period}
	days := m.data.occupancy[k]
	if days == nil {
		days = make(map[int]ppug.BedOccupancy, len(records))
		m.data.occupancy[k] = days
	}
	for d, rec := range records {
		days[d] = rec
	}
	return nil
}

func (d memoryData) loadOccupancy(station ppug.StationID, period ppug.Period) map[int]ppug.BedOccupancy {
	src := d.occupancy[occupancyKey{station, period}]
	out := make(map[int]ppug.BedOccupancy, len(src))
	for day, rec := range src {
		out[day] = rec
	}
	return out
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newMemoryData()
	return nil
}

// ListStations returns every station that has entries, overrides or settings.
func (m *Memory) ListStations(_ context.Context) ([]ppug.StationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ppug.StationID]bool)
	for k := range m.data.entries {
		seen[k.Station] = true
	}
	for k := range m.data.overrides {
		seen[k.Station] = true
	}
	for st := range m.data.settings {
		seen[st] = true
	}
	stations := make([]ppug.StationID, 0, len(seen))
	for st := range seen {
		stations = append(stations, st)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i] < stations[j] })
	return stations, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(ppug.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.data.clone()
	if err := fn(&txView{data: m.data}); err != nil {
		m.data = saved
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	c := newMemoryData()
	for k, days := range d.entries {
		cp := make(map[int]ppug.DayEntry, len(days))
		for day, e := range days {
			cp[day] = e
		}
		c.entries[k] = cp
	}
	for k, v := range d.overrides {
		c.overrides[k] = v
	}
	for k, v := range d.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	for k, days := range d.occupancy {
		cp := make(map[int]ppug.BedOccupancy, len(days))
		for day, rec := range days {
			cp[day] = rec
		}
		c.occupancy[k] = cp
	}
	return c
}

// txView operates on the data while the parent's write lock is held.
type txView struct {
	data memoryData
}

func (tv *txView) LoadDayEntries(_ context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	return tv.data.loadEntries(key), nil
}

func (tv *txView) SaveDayEntries(_ context.Context, key ppug.EntryKey, entries []ppug.DayEntry) error {
	tv.data.saveEntries(key, entries)
	return nil
}

func (tv *txView) DeleteDayEntries(_ context.Context, key ppug.EntryKey) error {
	delete(tv.data.entries, key)
	return nil
}

func (tv *txView) LoadSubstituteHours(_ context.Context, station ppug.StationID, period ppug.Period, shift ppug.Shift) (map[int]float64, error) {
	key := ppug.EntryKey{Station: station, Period: period, Category: ppug.CategorySubstitute, Shift: shift}
	return ppug.SubstituteHoursFromEntries(tv.data.loadEntries(key)), nil
}

func (tv *txView) GetOverride(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift) (*ppug.Configuration, error) {
	return tv.data.getOverride(configKey{station, category, shift}), nil
}

func (tv *txView) SaveOverride(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, cfg ppug.Configuration) error {
	tv.data.overrides[configKey{station, category, shift}] = cfg
	return nil
}

func (tv *txView) SaveSnapshot(_ context.Context, snap ppug.ConfigSnapshot) error {
	tv.data.snapshots[snap.Key] = snap
	return nil
}

func (tv *txView) LatestSnapshot(_ context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, atOrBefore ppug.Period) (*ppug.ConfigSnapshot, error) {
	return tv.data.latestSnapshot(station, category, shift, atOrBefore), nil
}

func (tv *txView) GetSettings(_ context.Context, station ppug.StationID) (ppug.StationSettings, error) {
	return tv.data.getSettings(station), nil
}

func (tv *txView) SaveSettings(_ context.Context, s ppug.StationSettings) error {
	tv.data.settings[s.Station] = s
	return nil
}

func (tv *txView) LoadBedOccupancy(_ context.Context, station ppug.StationID, period ppug.Period) (map[int]ppug.BedOccupancy, error) {
	return tv.data.loadOccupancy(station, period), nil
}
