package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/model"
)

const guestColumns = `id, purchase_id, guest_name, guest_order, checked_in, checkin_time,
    checked_in_by_id, checked_in_by_name, created_at`

// GuestRepo reads and writes the ticket_guests table.  It is the only
// code that updates check-in state.
type GuestRepo struct {
	db *sql.DB
}

// NewGuestRepo returns a new GuestRepo bound to the given database.
func NewGuestRepo(db *sql.DB) *GuestRepo { return &GuestRepo{db: db} }

func scanGuest(row rowScanner) (model.Guest, error) {
	var (
		g          model.Guest
		checkinAt  sql.NullTime
		byID, name sql.NullString
	)
	err := row.Scan(&g.ID, &g.PurchaseID, &g.GuestName, &g.GuestOrder, &g.CheckedIn, &checkinAt,
		&byID, &name, &g.CreatedAt)
	if err != nil {
		return g, err
	}
	if checkinAt.Valid {
		t := checkinAt.Time.UTC()
		g.CheckinTime = &t
	}
	g.CheckedInByID = nullable(byID)
	g.CheckedInByName = nullable(name)
	return g, nil
}

// ListByPurchase returns the purchase's guests ordered by guest_order.
func (r *GuestRepo) ListByPurchase(ctx context.Context, purchaseID string) ([]model.Guest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM ticket_guests WHERE purchase_id = ? ORDER BY guest_order ASC, id ASC`,
		purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Guest, 0)
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetByID returns one guest, or nil when the id is unknown.
func (r *GuestRepo) GetByID(ctx context.Context, id string) (*model.Guest, error) {
	g, err := scanGuest(r.db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM ticket_guests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// MarkCheckedIn sets checked_in, checkin_time and the attribution columns
// of one guest.  The update only matches a guest that has not arrived, so
// of two concurrent writers exactly one succeeds; the other gets
// checkin.ErrAlreadyCheckedIn and the first timestamp stays.
func (r *GuestRepo) MarkCheckedIn(ctx context.Context, id string, at time.Time, by model.Attribution) (*model.Guest, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_guests
         SET checked_in = TRUE, checkin_time = ?, checked_in_by_id = ?, checked_in_by_name = ?
         WHERE id = ? AND checked_in = FALSE`,
		at.UTC(), by.UsherID, by.UsherName, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	g, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case g == nil:
		return nil, checkin.ErrGuestNotFound
	case n == 0:
		return nil, checkin.ErrAlreadyCheckedIn
	}
	return g, nil
}

// CountByUsher derives per-usher check-in counts from the attribution
// columns, busiest usher first.
func (r *GuestRepo) CountByUsher(ctx context.Context) ([]model.UsherCheckIns, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT checked_in_by_id, MAX(checked_in_by_name), COUNT(*), MAX(checkin_time)
        FROM ticket_guests
        WHERE checked_in = TRUE AND checked_in_by_id IS NOT NULL
        GROUP BY checked_in_by_id
        ORDER BY COUNT(*) DESC, checked_in_by_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.UsherCheckIns, 0)
	for rows.Next() {
		var (
			u    model.UsherCheckIns
			name sql.NullString
			last sql.NullTime
		)
		if err := rows.Scan(&u.UsherID, &name, &u.CheckIns, &last); err != nil {
			return nil, err
		}
		u.UsherName = name.String
		if last.Valid {
			t := last.Time.UTC()
			u.LastAt = &t
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
