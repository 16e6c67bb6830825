package checkin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/iliyamo/event-gate/internal/model"
)

// Renderer draws the gate display of one device.
type Renderer interface {
	// ShowPurchase replaces the display with a newly selected purchase.
	ShowPurchase(p model.Purchase, guests []model.Guest)
	// ShowRoster redraws the guest list of the selected purchase.
	ShowRoster(guests []model.Guest)
	// ShowCheckedIn confirms a check-in performed on this device.
	ShowCheckedIn(g model.Guest)
	// ShowNotice displays a transient, non-fatal error.
	ShowNotice(err error)
	// Clear drops the current selection.
	Clear()
}

// Console is the per-device gate controller.  It ties search, roster and
// check-in together and makes sure only the newest search is ever drawn.
type Console struct {
	resolver  *Resolver
	ledger    *Ledger
	projector *Projector
	render    Renderer

	seq atomic.Uint64

	mu       sync.Mutex
	purchase *model.Purchase
	view     *View
}

func NewConsole(r *Resolver, l *Ledger, p *Projector, render Renderer) *Console {
	return &Console{resolver: r, ledger: l, projector: p, render: render}
}

// Search resolves token and, on a single match, opens its live roster.
// When another Search started after this one, the result is dropped and
// ErrStaleResponse is returned without rendering anything.
func (c *Console) Search(ctx context.Context, token string) error {
	seq := c.seq.Add(1)

	res, err := c.resolver.Resolve(ctx, token)
	if c.seq.Load() != seq {
		return ErrStaleResponse
	}
	if err != nil {
		if errors.Is(err, ErrNoMatch) || errors.Is(err, ErrEmptyQuery) {
			c.drop(seq)
		}
		c.render.ShowNotice(err)
		return err
	}

	var view *View
	onChange := func(guests []model.Guest) {
		c.mu.Lock()
		current := view != nil && c.view == view
		c.mu.Unlock()
		if current {
			c.render.ShowRoster(guests)
		}
	}
	v, err := c.projector.Open(ctx, res.Purchase.ID, onChange)
	if err != nil {
		if c.seq.Load() != seq {
			return ErrStaleResponse
		}
		c.render.ShowNotice(err)
		return err
	}

	c.mu.Lock()
	if c.seq.Load() != seq {
		c.mu.Unlock()
		_ = v.Close()
		return ErrStaleResponse
	}
	old := c.view
	purchase := res.Purchase
	view, c.view, c.purchase = v, v, &purchase
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.render.ShowPurchase(purchase, v.Guests())
	return nil
}

// CheckIn marks a guest of the selected purchase arrived under by.  The
// row is merged into the local roster as soon as the store confirms it.
func (c *Console) CheckIn(ctx context.Context, guestID string, by Attributor) (*model.Guest, error) {
	g, err := c.ledger.CheckIn(ctx, guestID, by)
	if err != nil {
		c.render.ShowNotice(err)
		return nil, err
	}
	c.mu.Lock()
	v := c.view
	c.mu.Unlock()
	if v != nil {
		v.Apply(*g)
	}
	c.render.ShowCheckedIn(*g)
	return g, nil
}

// GuestAt returns the guest at the given guest_order on the selected
// purchase.
func (c *Console) GuestAt(order int) (model.Guest, bool) {
	c.mu.Lock()
	v := c.view
	c.mu.Unlock()
	if v == nil {
		return model.Guest{}, false
	}
	for _, g := range v.Guests() {
		if g.GuestOrder == order {
			return g, true
		}
	}
	return model.Guest{}, false
}

// Selected returns the selected purchase and its current roster.
func (c *Console) Selected() (*model.Purchase, []model.Guest) {
	c.mu.Lock()
	p, v := c.purchase, c.view
	c.mu.Unlock()
	if p == nil || v == nil {
		return nil, nil
	}
	cp := *p
	return &cp, v.Guests()
}

// Close releases the roster subscription.
func (c *Console) Close() error {
	c.seq.Add(1)
	c.mu.Lock()
	v := c.view
	c.view, c.purchase = nil, nil
	c.mu.Unlock()
	return v.Close()
}

// drop clears the selection unless a newer search already replaced it.
func (c *Console) drop(seq uint64) {
	c.mu.Lock()
	if c.seq.Load() != seq {
		c.mu.Unlock()
		return
	}
	v := c.view
	c.view, c.purchase = nil, nil
	c.mu.Unlock()
	if v != nil {
		_ = v.Close()
	}
	c.render.Clear()
}
