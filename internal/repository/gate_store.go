package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/feed"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
)

// GateStore is the shared store every gate device talks to: the MySQL
// repositories for reads and writes, plus a change-feed broker that every
// committed write is announced on.
type GateStore struct {
	Purchases *PurchaseRepo
	Guests    *GuestRepo
	Events    *EventRepo

	broker feed.Broker
	log    *logger.Logger
}

func NewGateStore(db *sql.DB, broker feed.Broker, log *logger.Logger) *GateStore {
	if log == nil {
		log = logger.Nop()
	}
	return &GateStore{
		Purchases: NewPurchaseRepo(db),
		Guests:    NewGuestRepo(db),
		Events:    NewEventRepo(db),
		broker:    broker,
		log:       log,
	}
}

func (s *GateStore) FindPurchaseByQRCode(ctx context.Context, code string) (*model.Purchase, error) {
	return s.Purchases.FindByQRCode(ctx, code)
}

func (s *GateStore) SearchPurchases(ctx context.Context, text string, limit int) ([]model.Purchase, error) {
	return s.Purchases.Search(ctx, text, limit)
}

func (s *GateStore) ListGuests(ctx context.Context, purchaseID string) ([]model.Guest, error) {
	return s.Guests.ListByPurchase(ctx, purchaseID)
}

func (s *GateStore) GetGuest(ctx context.Context, id string) (*model.Guest, error) {
	return s.Guests.GetByID(ctx, id)
}

func (s *GateStore) CheckInGuest(ctx context.Context, id string, at time.Time, by model.Attribution) (*model.Guest, error) {
	g, err := s.Guests.MarkCheckedIn(ctx, id, at, by)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, model.ChangeUpdate, model.TableGuests, *g)
	return g, nil
}

func (s *GateStore) Subscribe(ctx context.Context, table string, mask model.EventMask) (checkin.Subscription, error) {
	st, err := s.broker.Subscribe(ctx, table, mask)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// CreatePurchase writes the purchase and its roster, then announces the
// new rows.
func (s *GateStore) CreatePurchase(ctx context.Context, p *model.Purchase, guests []model.Guest) error {
	PrepareNewPurchase(p, guests, time.Now())
	if err := s.Purchases.CreateWithGuests(ctx, p, guests); err != nil {
		return err
	}
	s.announce(ctx, model.ChangeInsert, model.TablePurchases, *p)
	for _, g := range guests {
		s.announce(ctx, model.ChangeInsert, model.TableGuests, g)
	}
	return nil
}

func (s *GateStore) ListPurchases(ctx context.Context) ([]model.Purchase, error) {
	return s.Purchases.List(ctx)
}

func (s *GateStore) GetPurchase(ctx context.Context, id string) (*model.Purchase, error) {
	return s.Purchases.GetByID(ctx, id)
}

func (s *GateStore) SalesSummary(ctx context.Context) (model.SalesSummary, error) {
	return s.Purchases.Summary(ctx)
}

func (s *GateStore) CheckInsByUsher(ctx context.Context) ([]model.UsherCheckIns, error) {
	return s.Guests.CountByUsher(ctx)
}

func (s *GateStore) CurrentEvent(ctx context.Context) (*model.Event, error) {
	return s.Events.Current(ctx)
}

func (s *GateStore) SaveEvent(ctx context.Context, e *model.Event) error {
	return s.Events.Save(ctx, e)
}

// announce publishes a committed change.  The write already succeeded, so
// a publish failure is logged and otherwise ignored; viewers catch up on
// their next load.
func (s *GateStore) announce(ctx context.Context, t model.ChangeType, table string, row any) {
	if s.broker == nil {
		return
	}
	ev, err := model.NewChangeEvent(t, table, row)
	if err == nil {
		err = s.broker.Publish(ctx, ev)
	}
	if err != nil {
		s.log.Error(s.log.WithField(ctx, "table", table), "announce change failed", err)
	}
}

// PrepareNewPurchase fills in what a new purchase and its guests need
// before insertion: ids, 1-based guest_order by position, timestamps and
// a pending payment status.  Values already set are kept.
func PrepareNewPurchase(p *model.Purchase, guests []model.Guest, now time.Time) {
	now = now.UTC().Truncate(time.Second)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = now
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = model.PaymentPending
	}
	for i := range guests {
		g := &guests[i]
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.GuestOrder == 0 {
			g.GuestOrder = i + 1
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		g.PurchaseID = p.ID
	}
}
