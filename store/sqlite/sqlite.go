/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ppug.TxStore using SQLite: day entries with their derived
  fields, station configuration overrides, station settings, configuration
  snapshots and daily bed occupancy. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  day_entries:       one row per station/period/category/shift/day
  station_configs:   station-specific configuration overrides
  station_settings:  per-station switches (pause tracking)
  config_snapshots:  configuration in effect at save time, one per key
  bed_occupancy:     midnight/midday occupancy per station and date

NUMERIC COLUMNS:
  Hours and derived values are stored as decimal TEXT (shopspring/decimal)
  so values read back compare equal to the values written. NULL means
  "not computable".

TRANSACTIONS:
  WithTx runs the callback against a view bound to one *sql.Tx. Recompute
  and save load and persist inside it, so a failure leaves the previously
  stored derived fields untouched.

USAGE:
  store, err := sqlite.New("./data/ppug.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ppug.NewEngine(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/staffing-engine/ppug"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	conn
}

var _ ppug.TxStore = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := FromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// FromDB wraps an open database without migrating it.
func FromDB(db *sql.DB) *Store {
	return &Store{db: db, conn: conn{q: db}}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS day_entries (
		id TEXT PRIMARY KEY,
		station_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		category TEXT NOT NULL,
		shift TEXT NOT NULL,
		day INTEGER NOT NULL,
		hours INTEGER NOT NULL DEFAULT 0,
		minutes INTEGER NOT NULL DEFAULT 0,
		pause_hours INTEGER NOT NULL DEFAULT 0,
		pause_minutes INTEGER NOT NULL DEFAULT 0,
		primary_equivalent TEXT,
		combined_equivalent TEXT,
		substitute_equivalent TEXT,
		creditable_substitute_hours TEXT,
		updated_at TEXT NOT NULL,
		UNIQUE(station_id, year, month, category, shift, day)
	);

	CREATE INDEX IF NOT EXISTS idx_day_entries_key
		ON day_entries(station_id, year, month, category, shift);

	CREATE TABLE IF NOT EXISTS station_configs (
		station_id TEXT NOT NULL,
		category TEXT NOT NULL,
		shift TEXT NOT NULL,
		shift_hours TEXT NOT NULL,
		substitution_base_factor TEXT,
		pp_ratio_base TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY(station_id, category, shift)
	);

	CREATE TABLE IF NOT EXISTS station_settings (
		station_id TEXT PRIMARY KEY,
		pause_tracking BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	-- One snapshot per key; a later save for the same key replaces it
	CREATE TABLE IF NOT EXISTS config_snapshots (
		id TEXT PRIMARY KEY,
		station_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		period_index INTEGER NOT NULL,
		category TEXT NOT NULL,
		shift TEXT NOT NULL,
		config_json TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		UNIQUE(station_id, year, month, category, shift)
	);

	-- "Latest at or before" lookups
	CREATE INDEX IF NOT EXISTS idx_config_snapshots_lookup
		ON config_snapshots(station_id, category, shift, period_index DESC);

	CREATE TABLE IF NOT EXISTS bed_occupancy (
		station_id TEXT NOT NULL,
		date TEXT NOT NULL,
		midnight_count TEXT,
		midday_count TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY(station_id, date)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS (ppug.Store interface)
// =============================================================================

func (s *Store) LoadDayEntries(ctx context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadDayEntries(ctx, key)
}

// SaveDayEntries writes all entries in one database transaction.
func (s *Store) SaveDayEntries(ctx context.Context, key ppug.EntryKey, entries []ppug.DayEntry) error {
	return s.WithTx(ctx, func(tx ppug.Store) error {
		return tx.SaveDayEntries(ctx, key, entries)
	})
}

func (s *Store) DeleteDayEntries(ctx context.Context, key ppug.EntryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.DeleteDayEntries(ctx, key)
}

func (s *Store) LoadSubstituteHours(ctx context.Context, station ppug.StationID, period ppug.Period, shift ppug.Shift) (map[int]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadSubstituteHours(ctx, station, period, shift)
}

func (s *Store) GetOverride(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift) (*ppug.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.GetOverride(ctx, station, category, shift)
}

func (s *Store) SaveOverride(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, cfg ppug.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SaveOverride(ctx, station, category, shift, cfg)
}

func (s *Store) SaveSnapshot(ctx context.Context, snap ppug.ConfigSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SaveSnapshot(ctx, snap)
}

func (s *Store) LatestSnapshot(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, atOrBefore ppug.Period) (*ppug.ConfigSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LatestSnapshot(ctx, station, category, shift, atOrBefore)
}

func (s *Store) GetSettings(ctx context.Context, station ppug.StationID) (ppug.StationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.GetSettings(ctx, station)
}

func (s *Store) SaveSettings(ctx context.Context, settings ppug.StationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SaveSettings(ctx, settings)
}

func (s *Store) LoadBedOccupancy(ctx context.Context, station ppug.StationID, period ppug.Period) (map[int]ppug.BedOccupancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadBedOccupancy(ctx, station, period)
}

// SaveBedOccupancy upserts occupancy records for days of a period.
func (s *Store) SaveBedOccupancy(ctx context.Context, station ppug.StationID, period ppug.Period, records map[int]ppug.BedOccupancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	c := conn{q: sqlTx}
	for day, rec := range records {
		if !period.Contains(day) {
			return fmt.Errorf("%w: occupancy day %d outside %s", ppug.ErrInvalidDay, day, period)
		}
		if err := c.saveOccupancy(ctx, station, period.Date(day), rec); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// TRANSACTIONAL STORE (ppug.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ppug.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// CONN - Queries against a *sql.DB or *sql.Tx
// =============================================================================

type conn struct {
	q queryer
}

const entryColumns = `day, hours, minutes, pause_hours, pause_minutes,
	primary_equivalent, combined_equivalent, substitute_equivalent, creditable_substitute_hours`

func (c *conn) LoadDayEntries(ctx context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM day_entries
		WHERE station_id = ? AND year = ? AND month = ? AND category = ? AND shift = ?
		ORDER BY day ASC`,
		key.Station, key.Period.Year, int(key.Period.Month), key.Category, key.Shift,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query day entries: %w", err)
	}
	defer rows.Close()

	var entries []ppug.DayEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ppug.DayEntry, error) {
	var (
		e                                         ppug.DayEntry
		primary, combined, substitute, creditable sql.NullString
	)
	err := rows.Scan(&e.Day, &e.Hours, &e.Minutes, &e.PauseHours, &e.PauseMinutes,
		&primary, &combined, &substitute, &creditable)
	if err != nil {
		return e, fmt.Errorf("failed to scan day entry: %w", err)
	}
	e.Derived = ppug.DerivedFields{
		PrimaryEquivalent:         parseNullDecimal(primary),
		CombinedEquivalent:        parseNullDecimal(combined),
		SubstituteEquivalent:      parseNullDecimal(substitute),
		CreditableSubstituteHours: parseNullDecimal(creditable),
	}
	return e, nil
}

func (c *conn) SaveDayEntries(ctx context.Context, key ppug.EntryKey, entries []ppug.DayEntry) error {
	query := `
		INSERT INTO day_entries
		(id, station_id, year, month, category, shift, day, hours, minutes, pause_hours, pause_minutes,
		 primary_equivalent, combined_equivalent, substitute_equivalent, creditable_substitute_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, year, month, category, shift, day) DO UPDATE SET
			hours = excluded.hours,
			minutes = excluded.minutes,
			pause_hours = excluded.pause_hours,
			pause_minutes = excluded.pause_minutes,
			primary_equivalent = excluded.primary_equivalent,
			combined_equivalent = excluded.combined_equivalent,
			substitute_equivalent = excluded.substitute_equivalent,
			creditable_substitute_hours = excluded.creditable_substitute_hours,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		_, err := c.q.ExecContext(ctx, query,
			uuid.NewString(),
			key.Station, key.Period.Year, int(key.Period.Month), key.Category, key.Shift,
			e.Day, e.Hours, e.Minutes, e.PauseHours, e.PauseMinutes,
			nullDecimal(e.Derived.PrimaryEquivalent),
			nullDecimal(e.Derived.CombinedEquivalent),
			nullDecimal(e.Derived.SubstituteEquivalent),
			nullDecimal(e.Derived.CreditableSubstituteHours),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save day %d: %w", e.Day, err)
		}
	}
	return nil
}

func (c *conn) DeleteDayEntries(ctx context.Context, key ppug.EntryKey) error {
	_, err := c.q.ExecContext(ctx,
		`DELETE FROM day_entries WHERE station_id = ? AND year = ? AND month = ? AND category = ? AND shift = ?`,
		key.Station, key.Period.Year, int(key.Period.Month), key.Category, key.Shift,
	)
	if err != nil {
		return fmt.Errorf("failed to delete day entries: %w", err)
	}
	return nil
}

func (c *conn) LoadSubstituteHours(ctx context.Context, station ppug.StationID, period ppug.Period, shift ppug.Shift) (map[int]float64, error) {
	key := ppug.EntryKey{Station: station, Period: period, Category: ppug.CategorySubstitute, Shift: shift}
	entries, err := c.LoadDayEntries(ctx, key)
	if err != nil {
		return nil, err
	}
	return ppug.SubstituteHoursFromEntries(entries), nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (c *conn) GetOverride(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift) (*ppug.Configuration, error) {
	var shiftHours, ratioBase string
	var subBase sql.NullString
	err := c.q.QueryRowContext(ctx,
		`SELECT shift_hours, substitution_base_factor, pp_ratio_base
		 FROM station_configs WHERE station_id = ? AND category = ? AND shift = ?`,
		station, category, shift,
	).Scan(&shiftHours, &subBase, &ratioBase)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station config: %w", err)
	}
	return &ppug.Configuration{
		ShiftHours:             parseDecimal(shiftHours),
		SubstitutionBaseFactor: parseNullDecimal(subBase),
		PPRatioBase:            parseDecimal(ratioBase),
	}, nil
}

func (c *conn) SaveOverride(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, cfg ppug.Configuration) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO station_configs (station_id, category, shift, shift_hours, substitution_base_factor, pp_ratio_base, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, category, shift) DO UPDATE SET
			shift_hours = excluded.shift_hours,
			substitution_base_factor = excluded.substitution_base_factor,
			pp_ratio_base = excluded.pp_ratio_base,
			updated_at = excluded.updated_at`,
		station, category, shift,
		formatDecimal(cfg.ShiftHours),
		nullDecimal(cfg.SubstitutionBaseFactor),
		formatDecimal(cfg.PPRatioBase),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save station config: %w", err)
	}
	return nil
}

func (c *conn) SaveSnapshot(ctx context.Context, snap ppug.ConfigSnapshot) error {
	configJSON, err := json.Marshal(snap.Config)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot config: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	k := snap.Key
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO config_snapshots (id, station_id, year, month, period_index, category, shift, config_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, year, month, category, shift) DO UPDATE SET
			id = excluded.id,
			config_json = excluded.config_json,
			recorded_at = excluded.recorded_at`,
		snap.ID, k.Station, k.Period.Year, int(k.Period.Month), k.Period.Index(), k.Category, k.Shift,
		string(configJSON), snap.RecordedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save config snapshot: %w", err)
	}
	return nil
}

func (c *conn) LatestSnapshot(ctx context.Context, station ppug.StationID, category ppug.Category, shift ppug.Shift, atOrBefore ppug.Period) (*ppug.ConfigSnapshot, error) {
	var (
		snap              ppug.ConfigSnapshot
		year, month       int
		configJSON, atStr string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, year, month, config_json, recorded_at
		FROM config_snapshots
		WHERE station_id = ? AND category = ? AND shift = ? AND period_index <= ?
		ORDER BY period_index DESC
		LIMIT 1`,
		station, category, shift, atOrBefore.Index(),
	).Scan(&snap.ID, &year, &month, &configJSON, &atStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &snap.Config); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot config: %w", err)
	}
	snap.Key = ppug.EntryKey{
		Station:  station,
		Period:   ppug.NewPeriod(year, time.Month(month)),
		Category: category,
		Shift:    shift,
	}
	recordedAt, err := time.Parse(time.RFC3339, atStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot recorded_at: %w", err)
	}
	snap.RecordedAt = recordedAt
	return &snap, nil
}

func (c *conn) GetSettings(ctx context.Context, station ppug.StationID) (ppug.StationSettings, error) {
	settings := ppug.StationSettings{Station: station}
	err := c.q.QueryRowContext(ctx,
		`SELECT pause_tracking FROM station_settings WHERE station_id = ?`, station,
	).Scan(&settings.PauseTracking)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to get station settings: %w", err)
	}
	return settings, nil
}

func (c *conn) SaveSettings(ctx context.Context, settings ppug.StationSettings) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO station_settings (station_id, pause_tracking, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			pause_tracking = excluded.pause_tracking,
			updated_at = excluded.updated_at`,
		settings.Station, settings.PauseTracking, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save station settings: %w", err)
	}
	return nil
}

// =============================================================================
// BED OCCUPANCY
// =============================================================================

func (c *conn) LoadBedOccupancy(ctx context.Context, station ppug.StationID, period ppug.Period) (map[int]ppug.BedOccupancy, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT date, midnight_count, midday_count
		FROM bed_occupancy
		WHERE station_id = ? AND date >= ? AND date <= ?`,
		station, period.Date(1).Format("2006-01-02"), period.Date(period.DaysInMonth()).Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bed occupancy: %w", err)
	}
	defer rows.Close()

	out := make(map[int]ppug.BedOccupancy)
	for rows.Next() {
		var date string
		var midnight, midday sql.NullString
		if err := rows.Scan(&date, &midnight, &midday); err != nil {
			return nil, fmt.Errorf("failed to scan bed occupancy: %w", err)
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		out[t.Day()] = ppug.BedOccupancy{
			MidnightCount: parseNullDecimal(midnight),
			MiddayCount:   parseNullDecimal(midday),
		}
	}
	return out, rows.Err()
}

func (c *conn) saveOccupancy(ctx context.Context, station ppug.StationID, date time.Time, rec ppug.BedOccupancy) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO bed_occupancy (station_id, date, midnight_count, midday_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station_id, date) DO UPDATE SET
			midnight_count = excluded.midnight_count,
			midday_count = excluded.midday_count,
			updated_at = excluded.updated_at`,
		station, date.Format("2006-01-02"),
		nullDecimal(rec.MidnightCount), nullDecimal(rec.MiddayCount),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save bed occupancy: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"day_entries", "station_configs", "station_settings", "config_snapshots", "bed_occupancy"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// ListStations returns every station that has entries or configuration.
func (s *Store) ListStations(ctx context.Context) ([]ppug.StationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id FROM day_entries
		UNION SELECT station_id FROM station_configs
		UNION SELECT station_id FROM station_settings
		ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var stations []ppug.StationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		stations = append(stations, ppug.StationID(id))
	}
	return stations, rows.Err()
}

// Helper functions

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func nullDecimal(v *float64) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDecimal(*v), Valid: true}
}

func parseDecimal(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func parseNullDecimal(ns sql.NullString) *float64 {
	if !ns.Valid {
		return nil
	}
	v := parseDecimal(ns.String)
	return &v
}
