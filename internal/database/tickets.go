package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
)

// CreateTicket inserts a new in-progress ticket.
func (db *DB) CreateTicket(ctx context.Context, id string) (*Ticket, error) {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tickets (uuid, status, date) VALUES (?, ?, ?)`,
		id, string(StatusInProgress), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "database: insert ticket %s", id)
	}
	return &Ticket{ID: id, Status: StatusInProgress, CreatedAt: now}, nil
}

// GetTicket returns the ticket with the given id or ErrNotFound.
func (db *DB) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT uuid, status, resource_id, date FROM tickets WHERE uuid = ?`, id,
	)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "ticket %s", id)
	}
	return t, err
}

// SetTicketStatus moves a ticket to the given status.
func (db *DB) SetTicketStatus(ctx context.Context, id string, status Status) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE uuid = ?`, string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "database: update ticket status %s", id)
	}
	return checkRowsAffected(res, "ticket", id)
}

// FinishTicket links the resource and marks the ticket finished in one statement,
// so a finished ticket always has its resource set.
func (db *DB) FinishTicket(ctx context.Context, id, resourceID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tickets SET resource_id = ?, status = ? WHERE uuid = ?`,
		resourceID, string(StatusFinished), id,
	)
	if err != nil {
		return eris.Wrapf(err, "database: finish ticket %s", id)
	}
	return checkRowsAffected(res, "ticket", id)
}

// InterruptInProgress marks every in-progress ticket as interrupted.
// Called at startup, before any new job is accepted.
func (db *DB) InterruptInProgress(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE status = ?`,
		string(StatusInterrupted), string(StatusInProgress),
	)
	if err != nil {
		return 0, eris.Wrap(err, "database: interrupt tickets")
	}
	return res.RowsAffected()
}

// ListTickets returns tickets newest first.
func (db *DB) ListTickets(ctx context.Context, f TicketFilter) ([]Ticket, error) {
	q := sq.Select("uuid", "status", "resource_id", "date").
		From("tickets").
		OrderBy("date DESC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"date": f.Since.UTC()})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "database: build ticket query")
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "database: list tickets")
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, eris.Wrap(rows.Err(), "database: iterate tickets")
}

// GetStats counts tickets per status along with resource and cache rows.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Tickets: map[Status]int{}}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT COALESCE(status, ''), COUNT(*) FROM tickets GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "database: count tickets")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "database: scan ticket count")
		}
		stats.Tickets[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "database: iterate ticket counts")
	}

	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&stats.Resources); err != nil {
		return nil, eris.Wrap(err, "database: count resources")
	}
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&stats.CacheRows); err != nil {
		return nil, eris.Wrap(err, "database: count cache rows")
	}
	return stats, nil
}

func scanTicket(row scannable) (*Ticket, error) {
	var t Ticket
	var status sql.NullString
	var resourceID sql.NullString
	var created sql.NullTime
	if err := row.Scan(&t.ID, &status, &resourceID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "database: scan ticket")
	}
	t.Status = Status(status.String)
	if resourceID.Valid {
		t.ResourceID = &resourceID.String
	}
	if created.Valid {
		t.CreatedAt = created.Time
	}
	return &t, nil
}
