package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-gate/internal/model"
)

// EventRepo reads and writes the single current event in the tickets
// table.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Current returns the oldest event row or ErrNotFound when none exists.
func (r *EventRepo) Current(ctx context.Context) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_name, venue, date, time, price, created_at, updated_at
         FROM tickets ORDER BY created_at ASC, id ASC LIMIT 1`).
		Scan(&e.ID, &e.EventName, &e.Venue, &e.Date, &e.Time, &e.Price, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Save updates the current event in place, or inserts one when the table
// is empty.  The stored id and timestamps are written back into e.
func (r *EventRepo) Save(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC().Truncate(time.Second)
	current, err := r.Current(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO tickets (id, event_name, venue, date, time, price, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.EventName, e.Venue, e.Date, e.Time, e.Price, now, now)
		if err != nil {
			return err
		}
		e.CreatedAt, e.UpdatedAt = now, now
		return nil
	case err != nil:
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE tickets SET event_name = ?, venue = ?, date = ?, time = ?, price = ?, updated_at = ? WHERE id = ?`,
		e.EventName, e.Venue, e.Date, e.Time, e.Price, now, current.ID)
	if err != nil {
		return err
	}
	e.ID, e.CreatedAt, e.UpdatedAt = current.ID, current.CreatedAt, now
	return nil
}
