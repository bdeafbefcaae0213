// Package zonestore is a SQLite-backed zone store that implements
// gateway.Gateway. It backs the sandbox mode of the service and the
// integration tests of the host adapters.
package zonestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS zone_types (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS zones (
	id          TEXT PRIMARY KEY,
	name        TEXT,
	zone_types  TEXT NOT NULL DEFAULT '[]',
	points      TEXT NOT NULL DEFAULT '[]',
	version     TEXT NOT NULL,
	comment     TEXT NOT NULL DEFAULT '',
	active_from TEXT NOT NULL DEFAULT '',
	active_to   TEXT NOT NULL DEFAULT '',
	extra       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_zone_types_name ON zone_types(name);
`

// DB is the sandbox zone store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("zonestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("zonestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("zonestore: apply schema: %w", err)
	}
	if err := addExtraColumn(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("zonestore: migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// addExtraColumn upgrades databases created before zones.extra existed.
func addExtraColumn(conn *sql.DB) error {
	rows, err := conn.Query(`SELECT name FROM pragma_table_info('zones')`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		if col == "extra" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = conn.Exec(`ALTER TABLE zones ADD COLUMN extra TEXT NOT NULL DEFAULT '{}'`)
	return err
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
