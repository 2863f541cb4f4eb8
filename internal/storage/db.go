package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/engine"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
)

const schema = `
CREATE TABLE IF NOT EXISTS source_health (
	source_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	polls INTEGER NOT NULL,
	faults INTEGER NOT NULL,
	last_fault TEXT NOT NULL DEFAULT '',
	last_fault_ms INTEGER NOT NULL DEFAULT 0,
	last_ok_ms INTEGER NOT NULL DEFAULT 0,
	updated_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_health_updated ON source_health(updated_ms);

CREATE TABLE IF NOT EXISTS fault_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	message TEXT NOT NULL,
	UNIQUE(source_id, timestamp_ms)
);
CREATE INDEX IF NOT EXISTS idx_fault_events_ts ON fault_events(timestamp_ms);
`

// DB wraps a SQLite database holding source health diagnostics.
type DB struct {
	db *sql.DB
}

// HealthRow is the persisted health of one source.
type HealthRow struct {
	engine.SourceStats
	UpdatedAt time.Time `json:"updated_at"`
}

// FaultEvent is one distinct fault reported by a source.
type FaultEvent struct {
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordHealth upserts one row per source and logs each source's latest
// fault once. Counters reflect the engine that is currently running.
func (d *DB) RecordHealth(stats []engine.SourceStats, now time.Time) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, s := range stats {
		_, err := tx.Exec(`INSERT INTO source_health
			(source_id, category, polls, faults, last_fault, last_fault_ms, last_ok_ms, updated_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id) DO UPDATE SET
				category = excluded.category,
				polls = excluded.polls,
				faults = excluded.faults,
				last_fault = excluded.last_fault,
				last_fault_ms = excluded.last_fault_ms,
				last_ok_ms = excluded.last_ok_ms,
				updated_ms = excluded.updated_ms`,
			s.ID, s.Category.String(), s.Polls, s.Faults, s.LastFault,
			toMillis(s.LastFaultAt), toMillis(s.LastOKAt), now.UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert health %s: %w", s.ID, err)
		}
		if s.LastFaultAt.IsZero() {
			continue
		}
		_, err = tx.Exec(
			"INSERT OR IGNORE INTO fault_events (source_id, timestamp_ms, message) VALUES (?, ?, ?)",
			s.ID, s.LastFaultAt.UnixMilli(), s.LastFault,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert fault %s: %w", s.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SourceHealth returns every persisted source row ordered by id.
func (d *DB) SourceHealth() ([]HealthRow, error) {
	rows, err := d.db.Query(`SELECT source_id, category, polls, faults, last_fault,
		last_fault_ms, last_ok_ms, updated_ms FROM source_health ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HealthRow
	for rows.Next() {
		var r HealthRow
		var category string
		var faultMs, okMs, updatedMs int64
		if err := rows.Scan(&r.ID, &category, &r.Polls, &r.Faults, &r.LastFault, &faultMs, &okMs, &updatedMs); err != nil {
			return nil, err
		}
		r.Category = metric.ParseCategory(category)
		r.LastFaultAt = fromMillis(faultMs)
		r.LastOKAt = fromMillis(okMs)
		r.UpdatedAt = fromMillis(updatedMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentFaults returns up to limit faults of sourceID, newest first. An empty
// sourceID matches every source.
func (d *DB) RecentFaults(sourceID string, limit int) ([]FaultEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(`SELECT source_id, timestamp_ms, message FROM fault_events
		WHERE ? = '' OR source_id = ?
		ORDER BY timestamp_ms DESC LIMIT ?`, sourceID, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FaultEvent
	for rows.Next() {
		var e FaultEvent
		var ms int64
		if err := rows.Scan(&e.SourceID, &ms, &e.Message); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
