// Package checkin implements guest check-in reconciliation at the gate:
// resolving a scanned or typed token to one purchase, loading its guest
// roster, recording attributable check-ins and keeping displayed rosters
// in step with the shared store.
package checkin

import (
	"context"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// Gateway is the contract the gate needs from the backing store.
//
// Lookups that find nothing return a nil record and a nil error; any
// returned error is treated as the store being unavailable.
type Gateway interface {
	// FindPurchaseByQRCode looks up the single purchase whose qr_code equals
	// code exactly.
	FindPurchaseByQRCode(ctx context.Context, code string) (*model.Purchase, error)
	// SearchPurchases matches text case-insensitively as a substring of the
	// customer name or email, returning at most limit rows.
	SearchPurchases(ctx context.Context, text string, limit int) ([]model.Purchase, error)
	// ListGuests returns a purchase's guests ordered by guest_order.
	ListGuests(ctx context.Context, purchaseID string) ([]model.Guest, error)
	// GetGuest looks up one guest by id.
	GetGuest(ctx context.Context, id string) (*model.Guest, error)
	// CheckInGuest marks the guest arrived at the given time.  The write only
	// applies while the guest is not yet checked in; otherwise it returns
	// ErrAlreadyCheckedIn and leaves the row untouched.  An unknown id
	// returns ErrGuestNotFound.
	CheckInGuest(ctx context.Context, id string, at time.Time, by model.Attribution) (*model.Guest, error)
	// Subscribe opens a feed of row changes on table filtered by mask.
	Subscribe(ctx context.Context, table string, mask model.EventMask) (Subscription, error)
}

// Subscription is an open change feed.  Events is closed after Close or
// when the subscribing context ends.
type Subscription interface {
	Events() <-chan model.ChangeEvent
	Close() error
}

// Attributor is the usher identity a check-in is performed under.  It is
// passed to the ledger on every call instead of being looked up globally.
type Attributor interface {
	// Active reports whether the session is logged in.  It must be safe to
	// call on a nil receiver.
	Active() bool
	// Attribution returns the identity stamped on the ledger write.
	Attribution() model.Attribution
	// RecordCheckIn is called exactly once per successful check-in.  An
	// error means the tally could not be saved; the check-in stands.
	RecordCheckIn() error
}

// AuditPublisher receives every successful check-in.  Publishing is best
// effort; a failure never undoes the ledger write.
type AuditPublisher interface {
	PublishCheckIn(ctx context.Context, guest model.Guest) error
}
