package checkin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/model"
)

func TestRosterIsOrderedByGuestOrder(t *testing.T) {
	s, _ := newStore()
	p, _ := seedPurchaseGuests(t, s, "QR-9", "Ann Lee", "ann@example.com", []model.Guest{
		{GuestName: "Third", GuestOrder: 3},
		{GuestName: "First", GuestOrder: 1},
		{GuestName: "Second", GuestOrder: 2},
	})

	guests, err := checkin.NewRosterLoader(s).Load(context.Background(), p.ID)
	require.NoError(t, err)
	orders := make([]int, len(guests))
	for i, g := range guests {
		orders[i] = g.GuestOrder
	}
	assert.Equal(t, []int{1, 2, 3}, orders)
}

func TestRosterEmptyIsValid(t *testing.T) {
	s, _ := newStore()
	p, _ := seedPurchase(t, s, "QR-0", "No Names", "none@example.com")

	guests, err := checkin.NewRosterLoader(s).Load(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotNil(t, guests)
	assert.Empty(t, guests)
}

func TestRosterStoreFailure(t *testing.T) {
	s, _ := newStore()
	s.FailNext(errors.New("timeout"))
	_, err := checkin.NewRosterLoader(s).Load(context.Background(), "p")
	assert.ErrorIs(t, err, checkin.ErrStoreUnavailable)
}

func TestCountArrived(t *testing.T) {
	assert.Equal(t, 2, checkin.CountArrived([]model.Guest{{CheckedIn: true}, {}, {CheckedIn: true}}))
	assert.Zero(t, checkin.CountArrived(nil))
}
