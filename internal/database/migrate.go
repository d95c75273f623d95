package database

import (
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, eris.Wrap(err, "database: read schema version")
	}
	return version, nil
}

// isLegacyDB returns true if the database has the ticket table but no user_version set.
// Databases written by the previous service look like this.
func isLegacyDB(conn *sql.DB) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tickets'",
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "database: check for legacy tables")
	}
	return count > 0, nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		legacy, err := isLegacyDB(conn)
		if err != nil {
			return err
		}
		if legacy {
			zap.L().Info("detected legacy database, stamping as version 1")
			if _, err := conn.Exec("PRAGMA user_version = 1"); err != nil {
				return eris.Wrap(err, "database: stamp legacy version")
			}
			current = 1
		}
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		zap.L().Info("applying migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
		)

		tx, err := conn.Begin()
		if err != nil {
			return eris.Wrapf(err, "database: begin migration %d", m.Version)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "database: migration %d (%s)", m.Version, m.Description)
		}

		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "database: commit migration %d", m.Version)
		}

		// user_version cannot be set inside the transaction with modernc/sqlite.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return eris.Wrapf(err, "database: set version %d", m.Version)
		}
	}

	return nil
}
