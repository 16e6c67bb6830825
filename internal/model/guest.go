package model

import "time"

// Guest is one named admission slot inside a purchase, stored in the
// `ticket_guests` table.  A guest moves from not-arrived to arrived exactly
// once; CheckedIn and CheckinTime are write-once after that.
//
// Fields:
//
//	ID              – primary key (uuid).
//	PurchaseID      – owning purchase.
//	GuestName       – non-empty, unique within the purchase ignoring case.
//	GuestOrder      – 1-based position within the purchase.
//	CheckedIn       – arrival flag.
//	CheckinTime     – arrival timestamp, nil until CheckedIn.
//	CheckedInByID   – usher id that performed the check-in.
//	CheckedInByName – usher display name that performed the check-in.
//	CreatedAt       – creation timestamp.
type Guest struct {
	ID              string     `json:"id"`                           // ticket_guests.id
	PurchaseID      string     `json:"purchase_id"`                  // ticket_guests.purchase_id
	GuestName       string     `json:"guest_name"`                   // ticket_guests.guest_name
	GuestOrder      int        `json:"guest_order"`                  // ticket_guests.guest_order
	CheckedIn       bool       `json:"checked_in"`                   // ticket_guests.checked_in
	CheckinTime     *time.Time `json:"checkin_time"`                 // ticket_guests.checkin_time (nullable)
	CheckedInByID   *string    `json:"checked_in_by_id,omitempty"`   // ticket_guests.checked_in_by_id (nullable)
	CheckedInByName *string    `json:"checked_in_by_name,omitempty"` // ticket_guests.checked_in_by_name (nullable)
	CreatedAt       time.Time  `json:"created_at"`                   // ticket_guests.created_at
}

// Arrived reports whether the guest has been checked in.
func (g Guest) Arrived() bool { return g.CheckedIn }

// Attribution names the usher responsible for a check-in.
type Attribution struct {
	UsherID   string `json:"usher_id"`
	UsherName string `json:"usher_name"`
}

// UsherCheckIns is a ledger-derived per-usher count.
type UsherCheckIns struct {
	UsherID   string     `json:"usher_id"`
	UsherName string     `json:"usher_name"`
	CheckIns  int        `json:"check_ins"`
	LastAt    *time.Time `json:"last_checkin_at"`
}
