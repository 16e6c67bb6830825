package checkin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/model"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func TestSubscribeDeliversInsertsAndUpdates(t *testing.T) {
	s, _ := newStore()
	p := checkin.NewProjector(s, nil)

	var mu sync.Mutex
	var inserts, updates []string
	h, err := p.Subscribe(context.Background(), checkin.Handlers{
		OnInsert: func(g model.Guest) { mu.Lock(); inserts = append(inserts, g.GuestName); mu.Unlock() },
		OnUpdate: func(g model.Guest) { mu.Lock(); updates = append(updates, g.GuestName); mu.Unlock() },
	})
	require.NoError(t, err)

	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")
	_, err = checkin.NewLedger(s).CheckIn(context.Background(), guests[1].ID, loggedIn(t, "Sara", "u1"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(inserts) == 2 && len(updates) == 1
	}, waitFor, tick)

	require.NoError(t, p.Unsubscribe(h))
	require.NoError(t, p.Unsubscribe(h))

	seedPurchase(t, s, "QR-2", "Cy Dee", "cy@example.com", "Cy")
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"Ann", "Ben"}, inserts)
	assert.Equal(t, []string{"Ben"}, updates)
	mu.Unlock()
}

func TestViewMergesByIDAndKeepsOrder(t *testing.T) {
	s, _ := newStore()
	p, guests := seedPurchaseGuests(t, s, "QR-1", "Ann Lee", "ann@example.com", []model.Guest{
		{GuestName: "C", GuestOrder: 3},
		{GuestName: "A", GuestOrder: 1},
		{GuestName: "B", GuestOrder: 2},
	})
	view, err := checkin.NewProjector(s, nil).Open(context.Background(), p.ID, nil)
	require.NoError(t, err)
	defer view.Close()

	_, err = checkin.NewLedger(s).CheckIn(context.Background(), guests[0].ID, loggedIn(t, "Sara", "u1"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(
			[]arrival{{"A", false}, {"B", false}, {"C", true}},
			arrivals(view.Guests()),
		)
	}, waitFor, tick)
}

func TestViewIgnoresOtherPurchases(t *testing.T) {
	s, _ := newStore()
	mine, _ := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	_, theirs := seedPurchase(t, s, "QR-2", "Ben Cole", "ben@example.com", "Ben")

	var mu sync.Mutex
	calls := 0
	view, err := checkin.NewProjector(s, nil).Open(context.Background(), mine.ID, func([]model.Guest) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer view.Close()

	_, err = checkin.NewLedger(s).CheckIn(context.Background(), theirs[0].ID, loggedIn(t, "Sara", "u1"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []arrival{{"Ann", false}}, arrivals(view.Guests()))
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestViewNeverRegressesArrivedGuest(t *testing.T) {
	s, hub := newStore()
	p, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	view, err := checkin.NewProjector(s, nil).Open(context.Background(), p.ID, nil)
	require.NoError(t, err)
	defer view.Close()

	arrived, err := checkin.NewLedger(s).CheckIn(context.Background(), guests[0].ID, loggedIn(t, "Sara", "u1"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return view.Guests()[0].CheckedIn }, waitFor, tick)

	// A late notification carrying the pre-check-in row.
	stale := *arrived
	stale.CheckedIn = false
	stale.CheckinTime = nil
	ev, err := model.NewChangeEvent(model.ChangeUpdate, model.TableGuests, stale)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))
	time.Sleep(20 * time.Millisecond)

	got := view.Guests()
	require.Len(t, got, 1)
	assert.True(t, got[0].CheckedIn)
	assert.Equal(t, *arrived.CheckinTime, *got[0].CheckinTime)
}

func TestViewAppliesChangesRaisedDuringLoad(t *testing.T) {
	s, _ := newStore()
	p, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")

	// The roster snapshot is taken, then Ben checks in before Open merges it.
	gw := &hookedGateway{Store: s}
	gw.afterList = func(string) {
		_, err := checkin.NewLedger(s).CheckIn(context.Background(), guests[1].ID, loggedIn(t, "Sara", "u1"))
		require.NoError(t, err)
	}

	view, err := checkin.NewProjector(gw, nil).Open(context.Background(), p.ID, nil)
	require.NoError(t, err)
	defer view.Close()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]arrival{{"Ann", false}, {"Ben", true}}, arrivals(view.Guests()))
	}, waitFor, tick)
	assert.Len(t, view.Guests(), 2)
}

func TestViewPicksUpInsertedGuest(t *testing.T) {
	s, hub := newStore()
	p, _ := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")
	view, err := checkin.NewProjector(s, nil).Open(context.Background(), p.ID, nil)
	require.NoError(t, err)
	defer view.Close()

	late := model.Guest{ID: "g-late", PurchaseID: p.ID, GuestName: "Aaron", GuestOrder: 0}
	ev, err := model.NewChangeEvent(model.ChangeInsert, model.TableGuests, late)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(
			[]arrival{{"Aaron", false}, {"Ann", false}, {"Ben", false}},
			arrivals(view.Guests()),
		)
	}, waitFor, tick)
}
