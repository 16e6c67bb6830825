package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event holds the details of the ticketed event as stored in the
// `tickets` table.  There is a single current event; the admin edits it in
// place.
type Event struct {
	ID        string          `json:"id"`         // tickets.id
	EventName string          `json:"event_name"` // tickets.event_name
	Venue     string          `json:"venue"`      // tickets.venue
	Date      string          `json:"date"`       // tickets.date (YYYY-MM-DD)
	Time      string          `json:"time"`       // tickets.time (HH:MM)
	Price     decimal.Decimal `json:"price"`      // tickets.price per admission
	CreatedAt time.Time       `json:"created_at"` // tickets.created_at
	UpdatedAt time.Time       `json:"updated_at"` // tickets.updated_at
}
