package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS tickets (
    uuid TEXT PRIMARY KEY,
    status TEXT,
    resource_id TEXT,
    date DATETIME
);

CREATE TABLE IF NOT EXISTS resources (
    uuid TEXT PRIMARY KEY,
    resource TEXT,
    date DATETIME
);

CREATE TABLE IF NOT EXISTS cache (
    key TEXT PRIMARY KEY,
    content TEXT
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "normalize ticket statuses and index status",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
UPDATE tickets SET status = 'in_progress' WHERE status = 'in progress';
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_date ON tickets(date);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
