package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('requester', 'source_handler', 'carrier', 'admin')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS locations (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('store', 'warehouse')),
    address    TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS user_locations (
    user_id     INTEGER NOT NULL REFERENCES users(id),
    location_id INTEGER NOT NULL REFERENCES locations(id),
    PRIMARY KEY (user_id, location_id)
);

CREATE TABLE IF NOT EXISTS variants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    brand      TEXT,
    size       TEXT NOT NULL,
    photo      BLOB,
    photo_mime TEXT,
    thumbnail  BLOB,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inventory (
    location_id INTEGER NOT NULL REFERENCES locations(id),
    variant_id  TEXT NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity >= 0),
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (location_id, variant_id)
);

CREATE TABLE IF NOT EXISTS inventory_movements (
    id             INTEGER PRIMARY KEY,
    transfer_id    TEXT,
    kind           TEXT NOT NULL,
    location_id    INTEGER NOT NULL,
    variant_id     TEXT NOT NULL,
    delta          INTEGER NOT NULL,
    quantity_after INTEGER NOT NULL,
    actor_id       INTEGER,
    notes          TEXT,
    created_at     DATETIME NOT NULL,
    reverted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_transfer_kind_live
    ON inventory_movements(transfer_id, kind)
    WHERE transfer_id IS NOT NULL AND reverted_at IS NULL;

CREATE TABLE IF NOT EXISTS transfers (
    id                       TEXT PRIMARY KEY,
    variant_id               TEXT NOT NULL,
    quantity                 INTEGER NOT NULL CHECK (quantity > 0),
    source_location_id       INTEGER NOT NULL REFERENCES locations(id),
    destination_location_id  INTEGER NOT NULL REFERENCES locations(id),
    urgency                  TEXT NOT NULL CHECK (urgency IN ('customer-present', 'restock')),
    pickup_type              TEXT NOT NULL DEFAULT 'carrier',
    status                   TEXT NOT NULL,
    version                  INTEGER NOT NULL DEFAULT 1,
    requester_id             INTEGER NOT NULL,
    handler_id               INTEGER,
    carrier_id               INTEGER,
    created_at               DATETIME NOT NULL,
    accepted_at              DATETIME,
    courier_assigned_at      DATETIME,
    picked_up_at             DATETIME,
    delivered_at             DATETIME,
    confirmed_at             DATETIME,
    cancelled_at             DATETIME,
    failed_at                DATETIME,
    notes                    TEXT,
    handler_notes            TEXT,
    rejection_reason         TEXT,
    courier_notes            TEXT,
    estimated_pickup_minutes INTEGER,
    pickup_notes             TEXT,
    delivery_notes           TEXT,
    failure_reason           TEXT,
    reception_notes          TEXT,
    CHECK (source_location_id <> destination_location_id)
);

CREATE TABLE IF NOT EXISTS transport_incidents (
    id          INTEGER PRIMARY KEY,
    transfer_id TEXT NOT NULL REFERENCES transfers(id),
    carrier_id  INTEGER NOT NULL,
    type        TEXT NOT NULL,
    description TEXT NOT NULL,
    reported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
