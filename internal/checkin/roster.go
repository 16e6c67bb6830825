package checkin

import (
	"cmp"
	"context"
	"slices"

	"github.com/iliyamo/event-gate/internal/model"
)

// RosterLoader reads the guest list of a purchase.
type RosterLoader struct {
	gw Gateway
}

func NewRosterLoader(gw Gateway) *RosterLoader { return &RosterLoader{gw: gw} }

// Load returns the purchase's guests by ascending guest_order.  A purchase
// without captured guest names yields an empty roster, not an error.
func (r *RosterLoader) Load(ctx context.Context, purchaseID string) ([]model.Guest, error) {
	guests, err := r.gw.ListGuests(ctx, purchaseID)
	if err != nil {
		return nil, unavailable("load roster", err)
	}
	if guests == nil {
		guests = []model.Guest{}
	}
	SortGuests(guests)
	return guests, nil
}

// SortGuests orders guests by guest_order, then id, in place.
func SortGuests(guests []model.Guest) {
	slices.SortStableFunc(guests, func(a, b model.Guest) int {
		if c := cmp.Compare(a.GuestOrder, b.GuestOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CountArrived returns how many guests have checked in.
func CountArrived(guests []model.Guest) int {
	n := 0
	for _, g := range guests {
		if g.CheckedIn {
			n++
		}
	}
	return n
}
