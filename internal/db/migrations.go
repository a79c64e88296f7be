package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: work queues filter by status and source location.
	`CREATE INDEX IF NOT EXISTS idx_transfers_status_source
	     ON transfers(status, source_location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_requester
	     ON transfers(requester_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_carrier
	     ON transfers(carrier_id) WHERE carrier_id IS NOT NULL`,
	// Migration 2: movement history per line.
	`CREATE INDEX IF NOT EXISTS idx_movements_line
	     ON inventory_movements(location_id, variant_id)`,
	// Migration 3: transfers held after a partial commit.
	`CREATE TABLE IF NOT EXISTS transfer_holds (
	     transfer_id TEXT PRIMARY KEY REFERENCES transfers(id),
	     action      TEXT NOT NULL,
	     effect      TEXT NOT NULL,
	     location_id INTEGER NOT NULL,
	     variant_id  TEXT NOT NULL,
	     quantity    INTEGER NOT NULL,
	     reason      TEXT NOT NULL,
	     created_at  DATETIME NOT NULL
	 )`,
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
