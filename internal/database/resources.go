package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// InsertResource stores job output under the given id.
func (db *DB) InsertResource(ctx context.Context, id, content string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO resources (uuid, resource, date) VALUES (?, ?, ?)`,
		id, content, time.Now().UTC(),
	)
	return eris.Wrapf(err, "database: insert resource %s", id)
}

// GetResource returns the resource with the given id or ErrNotFound.
func (db *DB) GetResource(ctx context.Context, id string) (*Resource, error) {
	var r Resource
	var content sql.NullString
	var created sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT uuid, resource, date FROM resources WHERE uuid = ?`, id,
	).Scan(&r.ID, &content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "resource %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "database: get resource %s", id)
	}
	r.Content = content.String
	if created.Valid {
		r.CreatedAt = created.Time
	}
	return &r, nil
}
