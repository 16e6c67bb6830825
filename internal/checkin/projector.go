package checkin

import (
	"context"
	"sync"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
)

// Handlers receive guest row changes from the feed.  A nil handler opts out
// of that change type.
type Handlers struct {
	OnInsert func(model.Guest)
	OnUpdate func(model.Guest)
}

// Handle identifies an active subscription.
type Handle struct {
	sub  Subscription
	done chan struct{}
	once sync.Once
	err  error
}

// Projector keeps displayed guest rosters consistent with the store by
// merging the change feed into them.
type Projector struct {
	gw     Gateway
	roster *RosterLoader
	log    *logger.Logger
}

func NewProjector(gw Gateway, log *logger.Logger) *Projector {
	if log == nil {
		log = logger.Nop()
	}
	return &Projector{gw: gw, roster: NewRosterLoader(gw), log: log}
}

// Subscribe starts delivering ticket_guests changes to h.  Handlers run on
// a single goroutine in feed order.
func (p *Projector) Subscribe(ctx context.Context, h Handlers) (*Handle, error) {
	var mask model.EventMask
	if h.OnInsert != nil {
		mask |= model.MaskInsert
	}
	if h.OnUpdate != nil {
		mask |= model.MaskUpdate
	}
	sub, err := p.gw.Subscribe(ctx, model.TableGuests, mask)
	if err != nil {
		return nil, unavailable("subscribe guests", err)
	}
	handle := &Handle{sub: sub, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		for ev := range sub.Events() {
			g, err := ev.Guest()
			if err != nil {
				p.log.Warn(ctx, "dropping malformed guest change: "+err.Error())
				continue
			}
			switch {
			case ev.Type == model.ChangeInsert && h.OnInsert != nil:
				h.OnInsert(g)
			case ev.Type == model.ChangeUpdate && h.OnUpdate != nil:
				h.OnUpdate(g)
			}
		}
	}()
	return handle, nil
}

// Unsubscribe closes the feed and waits until no handler is running.  It
// must not be called from inside a handler.
func (p *Projector) Unsubscribe(h *Handle) error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.sub.Close()
		<-h.done
	})
	return h.err
}

// View is the live guest roster of one purchase.
type View struct {
	purchaseID string
	projector  *Projector
	handle     *Handle
	onChange   func([]model.Guest)

	mu      sync.Mutex
	rows    map[string]model.Guest
	loaded  bool
	pending []model.Guest
	version uint64

	emitMu  sync.Mutex
	emitted uint64
}

// Open subscribes to guest changes, then loads the purchase's roster.
// Changes that arrive before the load completes are held back and merged
// afterwards.  onChange, when set, receives every new ordered snapshot;
// a snapshot is never delivered after a newer one.
func (p *Projector) Open(ctx context.Context, purchaseID string, onChange func([]model.Guest)) (*View, error) {
	v := &View{
		purchaseID: purchaseID,
		projector:  p,
		onChange:   onChange,
		rows:       make(map[string]model.Guest),
	}
	h, err := p.Subscribe(ctx, Handlers{OnInsert: v.Apply, OnUpdate: v.Apply})
	if err != nil {
		return nil, err
	}
	v.handle = h

	guests, err := p.roster.Load(ctx, purchaseID)
	if err != nil {
		_ = p.Unsubscribe(h)
		return nil, err
	}
	v.seed(guests)
	return v, nil
}

// PurchaseID returns the purchase this view follows.
func (v *View) PurchaseID() string { return v.purchaseID }

// Guests returns the current roster ordered by guest_order.
func (v *View) Guests() []model.Guest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Apply merges one changed row.  Rows of other purchases are ignored.
func (v *View) Apply(g model.Guest) {
	if g.PurchaseID != v.purchaseID {
		return
	}
	v.mu.Lock()
	if !v.loaded {
		v.pending = append(v.pending, g)
		v.mu.Unlock()
		return
	}
	if !v.mergeLocked(g) {
		v.mu.Unlock()
		return
	}
	v.version++
	ver, snap := v.version, v.snapshotLocked()
	v.mu.Unlock()
	v.emit(ver, snap)
}

// Close stops following the feed.
func (v *View) Close() error {
	if v == nil {
		return nil
	}
	return v.projector.Unsubscribe(v.handle)
}

func (v *View) seed(guests []model.Guest) {
	v.mu.Lock()
	for _, g := range guests {
		v.rows[g.ID] = g
	}
	for _, g := range v.pending {
		v.mergeLocked(g)
	}
	v.pending = nil
	v.loaded = true
	v.version++
	ver, snap := v.version, v.snapshotLocked()
	v.mu.Unlock()
	v.emit(ver, snap)
}

// mergeLocked replaces the row with the same id.  An arrived guest never
// reverts to not-arrived, whatever order notifications come in.
func (v *View) mergeLocked(g model.Guest) bool {
	if cur, ok := v.rows[g.ID]; ok && cur.CheckedIn && !g.CheckedIn {
		return false
	}
	v.rows[g.ID] = g
	return true
}

func (v *View) snapshotLocked() []model.Guest {
	out := make([]model.Guest, 0, len(v.rows))
	for _, g := range v.rows {
		out = append(out, g)
	}
	SortGuests(out)
	return out
}

func (v *View) emit(ver uint64, snap []model.Guest) {
	if v.onChange == nil {
		return
	}
	v.emitMu.Lock()
	defer v.emitMu.Unlock()
	if ver <= v.emitted {
		return
	}
	v.emitted = ver
	v.onChange(snap)
}
