package checkin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/metrics"
	"github.com/iliyamo/event-gate/internal/model"
)

// Ledger is the only writer of check-in state.  A guest goes from
// not-arrived to arrived once; repeat attempts are rejected and leave the
// first check-in time in place.
type Ledger struct {
	gw      Gateway
	audit   AuditPublisher
	metrics *metrics.Gate
	log     *logger.Logger
	now     func() time.Time
}

type LedgerOption func(*Ledger)

func WithAudit(a AuditPublisher) LedgerOption { return func(l *Ledger) { l.audit = a } }

func WithLedgerMetrics(m *metrics.Gate) LedgerOption { return func(l *Ledger) { l.metrics = m } }

func WithLedgerLogger(log *logger.Logger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithClock replaces time.Now for stamping check-ins.
func WithClock(now func() time.Time) LedgerOption { return func(l *Ledger) { l.now = now } }

func NewLedger(gw Gateway, opts ...LedgerOption) *Ledger {
	if gw == nil {
		panic("nil gateway passed to NewLedger")
	}
	l := &Ledger{gw: gw, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckIn marks one guest arrived on behalf of by.  It fails with
// ErrUsherRequired before touching the store when no session is active, and
// with ErrAlreadyCheckedIn when the guest arrived earlier, including when
// another usher won a concurrent write.  The session tally is bumped only
// after the store confirms the write.
func (l *Ledger) CheckIn(ctx context.Context, guestID string, by Attributor) (*model.Guest, error) {
	if by == nil || !by.Active() {
		l.metrics.ObserveCheckIn(metrics.OutcomeNoUsher)
		return nil, ErrUsherRequired
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		l.metrics.ObserveCheckIn(metrics.OutcomeUnknownSlot)
		return nil, ErrGuestNotFound
	}

	current, err := l.gw.GetGuest(ctx, guestID)
	if err != nil {
		l.metrics.ObserveCheckIn(metrics.OutcomeStoreError)
		return nil, unavailable("load guest", err)
	}
	if current == nil {
		l.metrics.ObserveCheckIn(metrics.OutcomeUnknownSlot)
		return nil, ErrGuestNotFound
	}
	if current.CheckedIn {
		l.metrics.ObserveCheckIn(metrics.OutcomeDuplicate)
		return nil, ErrAlreadyCheckedIn
	}

	attribution := by.Attribution()
	updated, err := l.gw.CheckInGuest(ctx, guestID, l.now().UTC(), attribution)
	switch {
	case errors.Is(err, ErrAlreadyCheckedIn):
		l.metrics.ObserveCheckIn(metrics.OutcomeDuplicate)
		return nil, ErrAlreadyCheckedIn
	case errors.Is(err, ErrGuestNotFound):
		l.metrics.ObserveCheckIn(metrics.OutcomeUnknownSlot)
		return nil, ErrGuestNotFound
	case err != nil:
		l.metrics.ObserveCheckIn(metrics.OutcomeStoreError)
		return nil, unavailable("check in guest", err)
	}

	l.metrics.ObserveCheckIn(metrics.OutcomeSuccess)
	if err := by.RecordCheckIn(); err != nil {
		l.log.Warn(l.log.WithUsherID(ctx, attribution.UsherID), "record usher tally failed: "+err.Error())
	}

	if l.audit != nil {
		if err := l.audit.PublishCheckIn(ctx, *updated); err != nil {
			ctx = l.log.WithFields(ctx, map[string]any{"guest_id": updated.ID, "usher_id": attribution.UsherID})
			l.log.Warn(ctx, "publish check-in audit event failed: "+err.Error())
		}
	}
	return updated, nil
}
