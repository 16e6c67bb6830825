package checkin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/feed"
	"github.com/iliyamo/event-gate/internal/memstore"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/usher"
)

var purchaseClock = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newStore() (*memstore.Store, *feed.Hub) {
	hub := feed.NewHub(nil)
	return memstore.New(hub), hub
}

// seedPurchase stores a purchase whose guests take guest_order from their
// position in names.
func seedPurchase(t *testing.T, s *memstore.Store, qr, name, email string, names ...string) (model.Purchase, []model.Guest) {
	t.Helper()
	guests := make([]model.Guest, len(names))
	for i, n := range names {
		guests[i] = model.Guest{GuestName: n, GuestOrder: i + 1}
	}
	return seedPurchaseGuests(t, s, qr, name, email, guests)
}

func seedPurchaseGuests(t *testing.T, s *memstore.Store, qr, name, email string, guests []model.Guest) (model.Purchase, []model.Guest) {
	t.Helper()
	purchaseClock = purchaseClock.Add(time.Minute)
	p := &model.Purchase{
		TicketID:      "RF101",
		CustomerName:  name,
		CustomerEmail: email,
		Quantity:      len(guests),
		TotalAmount:   decimal.NewFromInt(int64(50 * len(guests))),
		PaymentStatus: model.PaymentCompleted,
		PurchaseDate:  purchaseClock,
	}
	if qr != "" {
		p.QRCode = &qr
	}
	require.NoError(t, s.CreatePurchase(context.Background(), p, guests))
	return *p, guests
}

func loggedIn(t *testing.T, name, id string) *usher.Device {
	t.Helper()
	d, err := usher.NewDevice(nil)
	require.NoError(t, err)
	_, err = d.Login(name, id)
	require.NoError(t, err)
	return d
}

func tally(d *usher.Device) int {
	s, _ := d.Current()
	return s.CheckInsToday
}

// hookedGateway lets tests pause individual store calls.
type hookedGateway struct {
	*memstore.Store
	beforeFind func(code string)
	afterList  func(purchaseID string)
}

func (h *hookedGateway) FindPurchaseByQRCode(ctx context.Context, code string) (*model.Purchase, error) {
	if h.beforeFind != nil {
		h.beforeFind(code)
	}
	return h.Store.FindPurchaseByQRCode(ctx, code)
}

func (h *hookedGateway) ListGuests(ctx context.Context, purchaseID string) ([]model.Guest, error) {
	guests, err := h.Store.ListGuests(ctx, purchaseID)
	if h.afterList != nil {
		h.afterList(purchaseID)
	}
	return guests, err
}

type recordingRenderer struct {
	mu        sync.Mutex
	purchases []model.Purchase
	rosters   [][]model.Guest
	checked   []model.Guest
	notices   []error
	clears    int
}

func (r *recordingRenderer) ShowPurchase(p model.Purchase, guests []model.Guest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases = append(r.purchases, p)
	r.rosters = append(r.rosters, guests)
}

func (r *recordingRenderer) ShowRoster(guests []model.Guest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, guests)
}

func (r *recordingRenderer) ShowCheckedIn(g model.Guest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checked = append(r.checked, g)
}

func (r *recordingRenderer) ShowNotice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, err)
}

func (r *recordingRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *recordingRenderer) lastRoster() []model.Guest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rosters) == 0 {
		return nil
	}
	return r.rosters[len(r.rosters)-1]
}

func (r *recordingRenderer) shownPurchases() []model.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Purchase(nil), r.purchases...)
}

type arrival struct {
	name    string
	arrived bool
}

func arrivals(guests []model.Guest) []arrival {
	out := make([]arrival, len(guests))
	for i, g := range guests {
		out[i] = arrival{g.GuestName, g.CheckedIn}
	}
	return out
}

func newConsole(gw checkin.Gateway, r checkin.Renderer) *checkin.Console {
	return checkin.NewConsole(
		checkin.NewResolver(gw, nil),
		checkin.NewLedger(gw),
		checkin.NewProjector(gw, nil),
		r,
	)
}
