package checkin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
)

func TestConsoleScanThenCheckIn(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")
	r := &recordingRenderer{}
	c := newConsole(s, r)
	defer c.Close()
	sara := loggedIn(t, "Sara", "u1")

	require.NoError(t, c.Search(context.Background(), "QR-1"))
	require.Len(t, r.shownPurchases(), 1)
	assert.Equal(t, []arrival{{"Ann", false}, {"Ben", false}}, arrivals(r.lastRoster()))
	assert.Equal(t, 0, tally(sara))

	ben, ok := c.GuestAt(2)
	require.True(t, ok)
	_, err := c.CheckIn(context.Background(), ben.ID, sara)
	require.NoError(t, err)

	_, guests := c.Selected()
	assert.Equal(t, []arrival{{"Ann", false}, {"Ben", true}}, arrivals(guests))
	assert.Equal(t, 1, tally(sara))
}

func TestConsolesOnTwoDevicesConverge(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann", "Ben")

	first, second := &recordingRenderer{}, &recordingRenderer{}
	c1, c2 := newConsole(s, first), newConsole(s, second)
	defer c1.Close()
	defer c2.Close()

	require.NoError(t, c1.Search(context.Background(), "QR-1"))
	require.NoError(t, c2.Search(context.Background(), "ann lee"))

	ann, ok := c1.GuestAt(1)
	require.True(t, ok)
	_, err := c1.CheckIn(context.Background(), ann.ID, loggedIn(t, "Sara", "u1"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]arrival{{"Ann", true}, {"Ben", false}}, arrivals(second.lastRoster()))
	}, waitFor, tick)

	_, err = c2.CheckIn(context.Background(), ann.ID, loggedIn(t, "Omar", "u2"))
	assert.ErrorIs(t, err, checkin.ErrAlreadyCheckedIn)
}

func TestConsoleDiscardsSupersededSearch(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-A", "Alice Arden", "alice@example.com", "Alice")
	b, _ := seedPurchase(t, s, "QR-B", "Bob Baker", "bob@example.com", "Bob")

	started, release := make(chan struct{}), make(chan struct{})
	gw := &hookedGateway{Store: s}
	gw.beforeFind = func(code string) {
		if code == "QR-A" {
			close(started)
			<-release
		}
	}
	r := &recordingRenderer{}
	c := newConsole(gw, r)
	defer c.Close()

	slow := make(chan error, 1)
	go func() { slow <- c.Search(context.Background(), "QR-A") }()
	<-started

	require.NoError(t, c.Search(context.Background(), "QR-B"))
	close(release)
	assert.ErrorIs(t, <-slow, checkin.ErrStaleResponse)

	shown := r.shownPurchases()
	require.Len(t, shown, 1)
	assert.Equal(t, b.ID, shown[0].ID)
	selected, guests := c.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, b.ID, selected.ID)
	assert.Equal(t, []arrival{{"Bob", false}}, arrivals(guests))
	assert.Empty(t, r.notices)
}

func TestConsoleNoticesAndClear(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	r := &recordingRenderer{}
	c := newConsole(s, r)
	defer c.Close()

	require.NoError(t, c.Search(context.Background(), "QR-1"))
	assert.ErrorIs(t, c.Search(context.Background(), "nobody"), checkin.ErrNoMatch)

	selected, _ := c.Selected()
	assert.Nil(t, selected)
	assert.Equal(t, 1, r.clears)
	require.Len(t, r.notices, 1)
	assert.ErrorIs(t, r.notices[0], checkin.ErrNoMatch)

	_, ok := c.GuestAt(1)
	assert.False(t, ok)
}

func TestConsoleCheckInWithoutUsher(t *testing.T) {
	s, _ := newStore()
	_, guests := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	r := &recordingRenderer{}
	c := newConsole(s, r)
	defer c.Close()
	require.NoError(t, c.Search(context.Background(), "QR-1"))

	_, err := c.CheckIn(context.Background(), guests[0].ID, nil)
	assert.ErrorIs(t, err, checkin.ErrUsherRequired)
	_, roster := c.Selected()
	assert.Equal(t, []arrival{{"Ann", false}}, arrivals(roster))
	assert.Empty(t, r.checked)
}
