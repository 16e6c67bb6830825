package checkin_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/metrics"
)

func TestResolveExactTokenWins(t *testing.T) {
	s, _ := newStore()
	want, _ := seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	// A second purchase whose name contains the token must not make it ambiguous.
	seedPurchase(t, s, "QR-2", "QR-1 Fan Club", "club@example.com", "Zed")

	res, err := checkin.NewResolver(s, nil).Resolve(context.Background(), "  QR-1 ")
	require.NoError(t, err)
	assert.Equal(t, want.ID, res.Purchase.ID)
	assert.Equal(t, checkin.ExactToken, res.Strategy)
}

func TestResolveFuzzyTextIsCaseInsensitive(t *testing.T) {
	s, _ := newStore()
	want, _ := seedPurchase(t, s, "", "Ann Lee", "ann@example.com", "Ann")
	seedPurchase(t, s, "", "Ben Cole", "ben@example.com", "Ben")

	r := checkin.NewResolver(s, nil)
	for _, token := range []string{"ann lee", "LEE", "ANN@EXAMPLE"} {
		res, err := r.Resolve(context.Background(), token)
		require.NoError(t, err, token)
		assert.Equal(t, want.ID, res.Purchase.ID, token)
		assert.Equal(t, checkin.FuzzyText, res.Strategy, token)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	s, _ := newStore()
	for i := 0; i < 3; i++ {
		seedPurchase(t, s, "", fmt.Sprintf("Smith %d", i), fmt.Sprintf("s%d@example.com", i), "G")
	}

	_, err := checkin.NewResolver(s, nil).Resolve(context.Background(), "smith")
	n, ok := checkin.IsAmbiguous(err)
	require.True(t, ok, "expected ambiguous match, got %v", err)
	assert.Equal(t, 3, n)
}

func TestResolveAmbiguousCountIsCapped(t *testing.T) {
	s, _ := newStore()
	for i := 0; i < 14; i++ {
		seedPurchase(t, s, "", fmt.Sprintf("Guest %d", i), fmt.Sprintf("g%d@example.com", i), "G")
	}
	_, err := checkin.NewResolver(s, nil).Resolve(context.Background(), "example.com")
	n, ok := checkin.IsAmbiguous(err)
	require.True(t, ok)
	assert.Equal(t, checkin.FuzzyTextLimit, n)
}

func TestResolveEmptyAndNoMatch(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	r := checkin.NewResolver(s, nil)

	_, err := r.Resolve(context.Background(), " \t ")
	assert.ErrorIs(t, err, checkin.ErrEmptyQuery)

	_, err = r.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, checkin.ErrNoMatch)
}

func TestResolveStoreFailure(t *testing.T) {
	s, _ := newStore()
	s.FailNext(errors.New("connection reset"))

	_, err := checkin.NewResolver(s, nil).Resolve(context.Background(), "QR-1")
	assert.ErrorIs(t, err, checkin.ErrStoreUnavailable)
	assert.ErrorContains(t, err, "connection reset")
}

func TestResolveRecordsOutcomes(t *testing.T) {
	s, _ := newStore()
	seedPurchase(t, s, "QR-1", "Ann Lee", "ann@example.com", "Ann")
	reg := prometheus.NewRegistry()
	r := checkin.NewResolver(s, metrics.NewGate(reg))

	_, _ = r.Resolve(context.Background(), "QR-1")
	_, _ = r.Resolve(context.Background(), "QR-1")
	_, _ = r.Resolve(context.Background(), "nobody")

	expected := `
# HELP gate_resolve_total Purchase resolutions by outcome.
# TYPE gate_resolve_total counter
gate_resolve_total{outcome="none"} 1
gate_resolve_total{outcome="one"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "gate_resolve_total"))
}
