// Package memstore is an in-process store holding purchases, guests and
// the event record in memory.  It satisfies the same contracts as the
// MySQL-backed GateStore and publishes the same change events, so gate
// devices and tests can run without MySQL or Redis.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/feed"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/repository"
)

// Store is safe for concurrent use.
type Store struct {
	broker feed.Broker

	mu        sync.RWMutex
	purchases map[string]model.Purchase
	guests    map[string]model.Guest
	event     *model.Event

	// failNext makes the next store call fail; used to simulate outages.
	failNext error
}

// New returns an empty store publishing to broker.  A nil broker gets a
// private in-process hub.
func New(broker feed.Broker) *Store {
	if broker == nil {
		broker = feed.NewHub(nil)
	}
	return &Store{
		broker:    broker,
		purchases: make(map[string]model.Purchase),
		guests:    make(map[string]model.Guest),
	}
}

// FailNext makes the next store call return err wrapped as a store error.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Store) FindPurchaseByQRCode(_ context.Context, code string) (*model.Purchase, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.purchases {
		if p.QRCode != nil && *p.QRCode == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SearchPurchases(_ context.Context, text string, limit int) ([]model.Purchase, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	s.mu.RLock()
	out := make([]model.Purchase, 0)
	for _, p := range s.purchases {
		if strings.Contains(strings.ToLower(p.CustomerName), needle) ||
			strings.Contains(strings.ToLower(p.CustomerEmail), needle) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sortByDateDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListGuests(_ context.Context, purchaseID string) ([]model.Guest, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Guest, 0)
	for _, g := range s.guests {
		if g.PurchaseID == purchaseID {
			out = append(out, g)
		}
	}
	s.mu.RUnlock()
	checkin.SortGuests(out)
	return out, nil
}

func (s *Store) GetGuest(_ context.Context, id string) (*model.Guest, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guests[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// CheckInGuest applies the check-in only when the guest has not arrived
// yet, mirroring the conditional UPDATE of the SQL store.
func (s *Store) CheckInGuest(ctx context.Context, id string, at time.Time, by model.Attribution) (*model.Guest, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	g, ok := s.guests[id]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, checkin.ErrGuestNotFound
	case g.CheckedIn:
		s.mu.Unlock()
		return nil, checkin.ErrAlreadyCheckedIn
	}
	at = at.UTC()
	usherID, usherName := by.UsherID, by.UsherName
	g.CheckedIn = true
	g.CheckinTime = &at
	g.CheckedInByID = &usherID
	g.CheckedInByName = &usherName
	s.guests[id] = g
	s.mu.Unlock()

	s.publish(ctx, model.ChangeUpdate, model.TableGuests, g)
	return &g, nil
}

func (s *Store) Subscribe(ctx context.Context, table string, mask model.EventMask) (checkin.Subscription, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	st, err := s.broker.Subscribe(ctx, table, mask)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// CreatePurchase stores a purchase with its guest roster.  Missing ids,
// guest orders and timestamps are filled in as repository.PrepareNewPurchase
// does.
func (s *Store) CreatePurchase(ctx context.Context, p *model.Purchase, guests []model.Guest) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	repository.PrepareNewPurchase(p, guests, time.Now())

	s.mu.Lock()
	if _, dup := s.purchases[p.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("purchase %s: %w", p.ID, repository.ErrConflict)
	}
	if p.QRCode != nil {
		for _, other := range s.purchases {
			if other.QRCode != nil && *other.QRCode == *p.QRCode {
				s.mu.Unlock()
				return fmt.Errorf("qr_code %s: %w", *p.QRCode, repository.ErrConflict)
			}
		}
	}
	seen := make(map[string]bool, len(guests))
	for _, g := range guests {
		key := strings.ToLower(strings.TrimSpace(g.GuestName))
		if seen[key] {
			s.mu.Unlock()
			return fmt.Errorf("guest name %q: %w", g.GuestName, repository.ErrConflict)
		}
		seen[key] = true
	}
	for _, g := range guests {
		s.guests[g.ID] = g
	}
	s.purchases[p.ID] = *p
	s.mu.Unlock()

	s.publish(ctx, model.ChangeInsert, model.TablePurchases, *p)
	for _, g := range guests {
		s.publish(ctx, model.ChangeInsert, model.TableGuests, g)
	}
	return nil
}

func (s *Store) ListPurchases(_ context.Context) ([]model.Purchase, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sortByDateDesc(out)
	return out, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*model.Purchase, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SalesSummary(_ context.Context) (model.SalesSummary, error) {
	if err := s.takeFailure(); err != nil {
		return model.SalesSummary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := model.SalesSummary{Revenue: decimal.Zero}
	for _, p := range s.purchases {
		sum.Purchases++
		switch p.PaymentStatus {
		case model.PaymentCompleted:
			sum.Completed++
			sum.TicketsSold += p.Quantity
			sum.Revenue = sum.Revenue.Add(p.TotalAmount)
		case model.PaymentFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	for _, g := range s.guests {
		sum.GuestsTotal++
		if g.CheckedIn {
			sum.GuestsArrived++
		}
	}
	return sum, nil
}

func (s *Store) CheckInsByUsher(_ context.Context) ([]model.UsherCheckIns, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	byID := make(map[string]*model.UsherCheckIns)
	for _, g := range s.guests {
		if !g.CheckedIn || g.CheckedInByID == nil {
			continue
		}
		row, ok := byID[*g.CheckedInByID]
		if !ok {
			row = &model.UsherCheckIns{UsherID: *g.CheckedInByID}
			byID[*g.CheckedInByID] = row
		}
		row.CheckIns++
		if g.CheckinTime != nil && (row.LastAt == nil || g.CheckinTime.After(*row.LastAt)) {
			t := *g.CheckinTime
			row.LastAt = &t
			if g.CheckedInByName != nil {
				row.UsherName = *g.CheckedInByName
			}
		}
	}
	s.mu.RUnlock()

	out := make([]model.UsherCheckIns, 0, len(byID))
	for _, row := range byID {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b model.UsherCheckIns) int {
		if a.CheckIns != b.CheckIns {
			return b.CheckIns - a.CheckIns
		}
		return strings.Compare(a.UsherID, b.UsherID)
	})
	return out, nil
}

// CurrentEvent returns the event record or repository.ErrNotFound.
func (s *Store) CurrentEvent(_ context.Context) (*model.Event, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.event == nil {
		return nil, repository.ErrNotFound
	}
	e := *s.event
	return &e, nil
}

// SaveEvent creates or replaces the event record.
func (s *Store) SaveEvent(_ context.Context, e *model.Event) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event != nil {
		e.ID = s.event.ID
		e.CreatedAt = s.event.CreatedAt
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := *e
	s.event = &cp
	return nil
}

func (s *Store) publish(ctx context.Context, t model.ChangeType, table string, row any) {
	ev, err := model.NewChangeEvent(t, table, row)
	if err != nil {
		return
	}
	_ = s.broker.Publish(ctx, ev)
}

func sortByDateDesc(ps []model.Purchase) {
	slices.SortStableFunc(ps, func(a, b model.Purchase) int {
		if c := b.PurchaseDate.Compare(a.PurchaseDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
