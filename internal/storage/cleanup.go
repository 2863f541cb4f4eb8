package storage

import (
	"fmt"
	"time"
)

// DeleteOlderThan removes health rows of sources not updated since before and
// fault events older than before. Returns the total number of deleted rows.
func (d *DB) DeleteOlderThan(before time.Time) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	tables := []struct {
		name   string
		column string
	}{
		{"source_health", "updated_ms"},
		{"fault_events", "timestamp_ms"},
	}

	// Identifiers come from the fixed slice above; placeholders only bind values.
	for _, t := range tables {
		res, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.name, t.column),
			before.UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", t.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// Reset deletes every stored row.
func (d *DB) Reset() error {
	if _, err := d.db.Exec("DELETE FROM source_health; DELETE FROM fault_events;"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
