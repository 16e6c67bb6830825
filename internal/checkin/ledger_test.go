package checkin_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/usher"
)

type recordingAudit struct {
	mu     sync.Mutex
	guests []model.Guest
	err    error
}

func (a *recordingAudit) PublishCheckIn(_ context.Context, g model.Guest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.guests = append(a.guests, g)
	return a.err
}

func TestCheckInRequiresUsher(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	ledger := checkin.NewLedger(s)

	loggedOut, err := usher.NewDevice(nil)
	require.NoError(t, err)
	var nilDevice *usher.Device

	for name, by := range map[string]checkin.Attributor{
		"nil interface": nil,
		"nil device":    nilDevice,
		"logged out":    loggedOut,
	} {
		_, err := ledger.CheckIn(context.Background(), guests[0].ID, by)
		assert.ErrorIs(t, err, checkin.ErrUsherRequired, name)
	}

	g, err := s.GetGuest(context.Background(), guests[0].ID)
	require.NoError(t, err)
	assert.False(t, g.CheckedIn)
	assert.Nil(t, g.CheckinTime)
}

func TestCheckInUsherRequiredBeforeStore(t *testing.T) {
	s, _ := newStore()
	s.FailNext(errors.New("store down"))

	_, err := checkin.NewLedger(s).CheckIn(context.Background(), "any", nil)
	assert.ErrorIs(t, err, checkin.ErrUsherRequired)
	assert.NotErrorIs(t, err, checkin.ErrStoreUnavailable)
}

func TestCheckInIsDurableAndAttributed(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")
	at := time.Date(2026, 5, 2, 19, 30, 0, 0, time.UTC)
	audit := &recordingAudit{}
	ledger := checkin.NewLedger(s, checkin.WithClock(func() time.Time { return at }), checkin.WithAudit(audit))
	sara := loggedIn(t, "Sara", "u1")

	updated, err := ledger.CheckIn(context.Background(), guests[1].ID, sara)
	require.NoError(t, err)
	assert.True(t, updated.CheckedIn)
	require.NotNil(t, updated.CheckinTime)
	assert.Equal(t, at, *updated.CheckinTime)

	refetched, err := s.GetGuest(context.Background(), guests[1].ID)
	require.NoError(t, err)
	assert.True(t, refetched.CheckedIn)
	require.NotNil(t, refetched.CheckinTime)
	assert.Equal(t, at, *refetched.CheckinTime)
	require.NotNil(t, refetched.CheckedInByID)
	assert.Equal(t, "u1", *refetched.CheckedInByID)
	assert.Equal(t, "Sara", *refetched.CheckedInByName)

	untouched, err := s.GetGuest(context.Background(), guests[0].ID)
	require.NoError(t, err)
	assert.False(t, untouched.CheckedIn)

	assert.Equal(t, 1, tally(sara))
	require.Len(t, audit.guests, 1)
	assert.Equal(t, guests[1].ID, audit.guests[0].ID)
}

func TestCheckInTwicePreservesFirstTimestamp(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	now := time.Date(2026, 5, 2, 19, 0, 0, 0, time.UTC)
	ledger := checkin.NewLedger(s, checkin.WithClock(func() time.Time { return now }))
	sara := loggedIn(t, "Sara", "u1")
	omar := loggedIn(t, "Omar", "u2")

	first, err := ledger.CheckIn(context.Background(), guests[0].ID, sara)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	_, err = ledger.CheckIn(context.Background(), guests[0].ID, omar)
	assert.ErrorIs(t, err, checkin.ErrAlreadyCheckedIn)

	g, err := s.GetGuest(context.Background(), guests[0].ID)
	require.NoError(t, err)
	assert.True(t, g.CheckedIn)
	assert.Equal(t, *first.CheckinTime, *g.CheckinTime)
	assert.Equal(t, "u1", *g.CheckedInByID)
	assert.Equal(t, 1, tally(sara))
	assert.Equal(t, 0, tally(omar))
}

func TestCheckInRaceHasOneWinner(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	ledger := checkin.NewLedger(s)

	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := usher.FromSession(usher.Session{Name: "U", ID: string(rune('a' + i))})
			_, err := ledger.CheckIn(context.Background(), guests[0].ID, d)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, checkin.ErrAlreadyCheckedIn):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 7, dups.Load())
}

func TestCheckInUnknownGuest(t *testing.T) {
	s, _ := newStore()
	_, err := checkin.NewLedger(s).CheckIn(context.Background(), "missing", loggedIn(t, "Sara", "u1"))
	assert.ErrorIs(t, err, checkin.ErrGuestNotFound)

	_, err = checkin.NewLedger(s).CheckIn(context.Background(), "  ", loggedIn(t, "Sara", "u1"))
	assert.ErrorIs(t, err, checkin.ErrGuestNotFound)
}

func TestCheckInStoreFailureLeavesTallyAlone(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	sara := loggedIn(t, "Sara", "u1")

	s.FailNext(errors.New("deadline exceeded"))
	_, err := checkin.NewLedger(s).CheckIn(context.Background(), guests[0].ID, sara)
	assert.ErrorIs(t, err, checkin.ErrStoreUnavailable)
	assert.Equal(t, 0, tally(sara))
}

func TestCheckInAuditFailureIsNotFatal(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	audit := &recordingAudit{err: errors.New("broker gone")}
	sara := loggedIn(t, "Sara", "u1")

	g, err := checkin.NewLedger(s, checkin.WithAudit(audit)).CheckIn(context.Background(), guests[0].ID, sara)
	require.NoError(t, err)
	assert.True(t, g.CheckedIn)
	assert.Equal(t, 1, tally(sara))
}

// flakySessionStore accepts the login save and rejects every later one.
type flakySessionStore struct{ saves atomic.Int32 }

func (f *flakySessionStore) Load() (*usher.Session, error) { return nil, nil }
func (f *flakySessionStore) Clear() error                  { return nil }

func (f *flakySessionStore) Save(*usher.Session) error {
	if f.saves.Add(1) > 1 {
		return errors.New("read-only filesystem")
	}
	return nil
}

func TestCheckInStandsWhenTallySaveFails(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-9", "Ann Lee", "ann@example.com", "Ann")
	var out bytes.Buffer
	log := logger.New(logger.Options{ServiceName: "test", Output: &out})
	ledger := checkin.NewLedger(s, checkin.WithLedgerLogger(log))

	device, err := usher.NewDevice(&flakySessionStore{})
	require.NoError(t, err)
	_, err = device.Login("Maya", "U-7")
	require.NoError(t, err)

	g, err := ledger.CheckIn(context.Background(), guests[0].ID, device)
	require.NoError(t, err)
	assert.True(t, g.CheckedIn)

	sess, ok := device.Current()
	require.True(t, ok)
	assert.Equal(t, 1, sess.CheckInsToday)
	assert.Contains(t, out.String(), "record usher tally failed")
	assert.Contains(t, out.String(), "U-7")
}
