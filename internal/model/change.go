package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names used on the change feed.
const (
	TablePurchases = "purchases"
	TableGuests    = "ticket_guests"
)

// ChangeType is the kind of row-level change carried by a ChangeEvent.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// EventMask selects which change types a subscriber receives.
type EventMask uint8

const (
	MaskInsert EventMask = 1 << iota
	MaskUpdate

	MaskAll = MaskInsert | MaskUpdate
)

// Has reports whether the mask selects the given change type.
func (m EventMask) Has(t ChangeType) bool {
	switch t {
	case ChangeInsert:
		return m&MaskInsert != 0
	case ChangeUpdate:
		return m&MaskUpdate != 0
	}
	return false
}

// ChangeEvent is one row-level notification.  Row holds the full new row
// encoded with the table's wire field names.
type ChangeEvent struct {
	Type       ChangeType      `json:"type"`
	Table      string          `json:"table"`
	Row        json.RawMessage `json:"row"`
	CommitTime time.Time       `json:"commit_timestamp"`
}

// NewChangeEvent encodes row into a ChangeEvent for table.
func NewChangeEvent(t ChangeType, table string, row any) (ChangeEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("encode %s row: %w", table, err)
	}
	return ChangeEvent{Type: t, Table: table, Row: raw, CommitTime: time.Now().UTC()}, nil
}

// Guest decodes the row of a ticket_guests event.
func (e ChangeEvent) Guest() (Guest, error) {
	var g Guest
	if e.Table != TableGuests {
		return g, fmt.Errorf("event for table %q is not a guest row", e.Table)
	}
	if err := json.Unmarshal(e.Row, &g); err != nil {
		return g, fmt.Errorf("decode guest row: %w", err)
	}
	return g, nil
}

// Purchase decodes the row of a purchases event.
func (e ChangeEvent) Purchase() (Purchase, error) {
	var p Purchase
	if e.Table != TablePurchases {
		return p, fmt.Errorf("event for table %q is not a purchase row", e.Table)
	}
	if err := json.Unmarshal(e.Row, &p); err != nil {
		return p, fmt.Errorf("decode purchase row: %w", err)
	}
	return p, nil
}
