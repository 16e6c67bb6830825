// Package queue contains the audit event carried over RabbitMQ for every
// guest check-in and the background consumer that appends them to the
// check-in log.
package queue

import (
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// GuestCheckedInQueue is the durable queue the audit events travel on.
const GuestCheckedInQueue = "guest.checked_in"

// GuestCheckedInEvent is published after a guest is checked in.  It carries
// enough to write an audit line without querying the primary database.
type GuestCheckedInEvent struct {
	GuestID     string `json:"guest_id"`
	PurchaseID  string `json:"purchase_id"`
	GuestName   string `json:"guest_name"`
	GuestOrder  int    `json:"guest_order"`
	UsherID     string `json:"usher_id"`
	UsherName   string `json:"usher_name"`
	CheckedInAt string `json:"checked_in_at"`
}

// NewGuestCheckedInEvent builds the audit event for a checked-in guest.
func NewGuestCheckedInEvent(g model.Guest) GuestCheckedInEvent {
	ev := GuestCheckedInEvent{
		GuestID:    g.ID,
		PurchaseID: g.PurchaseID,
		GuestName:  g.GuestName,
		GuestOrder: g.GuestOrder,
	}
	if g.CheckedInByID != nil {
		ev.UsherID = *g.CheckedInByID
	}
	if g.CheckedInByName != nil {
		ev.UsherName = *g.CheckedInByName
	}
	if g.CheckinTime != nil {
		ev.CheckedInAt = g.CheckinTime.UTC().Format(time.RFC3339)
	}
	return ev
}
