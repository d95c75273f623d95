package database

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
)

// CacheKey joins a namespace and a lookup key the way stored rows are keyed.
func CacheKey(namespace, key string) string {
	return namespace + " " + key
}

// CacheGet returns the longest content stored for namespace+key.
func (db *DB) CacheGet(ctx context.Context, namespace, key string) (string, bool, error) {
	query, args, err := sq.Select("content").
		From("cache").
		Where(sq.Eq{"key": CacheKey(namespace, key)}).
		OrderBy("LENGTH(content) DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", false, eris.Wrap(err, "database: build cache query")
	}

	var content sql.NullString
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && content.String == "") {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "database: read cache")
	}
	return content.String, true, nil
}

// CachePut stores content for namespace+key. An existing entry is only
// replaced by longer content.
func (db *DB) CachePut(ctx context.Context, namespace, key, content string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO cache (key, content) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content
		WHERE LENGTH(excluded.content) > LENGTH(COALESCE(cache.content, ''))`,
		CacheKey(namespace, key), content,
	)
	return eris.Wrap(err, "database: write cache")
}
