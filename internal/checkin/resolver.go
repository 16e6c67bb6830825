package checkin

import (
	"context"
	"strings"

	"github.com/iliyamo/event-gate/internal/metrics"
	"github.com/iliyamo/event-gate/internal/model"
)

// Result limits for the two lookup strategies.
const (
	ExactTokenLimit = 1
	FuzzyTextLimit  = 10
)

// Strategy is one way of matching a token to purchases.  Strategies are
// evaluated in declaration order and the first one that finds anything
// decides the outcome.
type Strategy int

const (
	// ExactToken matches the token against qr_code exactly.
	ExactToken Strategy = iota
	// FuzzyText matches the token as a case-insensitive substring of the
	// customer name or email.
	FuzzyText
)

var strategyOrder = [...]Strategy{ExactToken, FuzzyText}

func (s Strategy) String() string {
	switch s {
	case ExactToken:
		return "exact_token"
	case FuzzyText:
		return "fuzzy_text"
	}
	return "unknown"
}

// Resolution is a token resolved to exactly one purchase.
type Resolution struct {
	Purchase model.Purchase
	Strategy Strategy
}

// Resolver maps a scanned or typed token to a single purchase.
type Resolver struct {
	gw      Gateway
	metrics *metrics.Gate
}

func NewResolver(gw Gateway, m *metrics.Gate) *Resolver {
	if gw == nil {
		panic("nil gateway passed to NewResolver")
	}
	return &Resolver{gw: gw, metrics: m}
}

// Resolve trims token and looks it up, first as an exact scan token and,
// only when that finds nothing, as free text.  It returns ErrEmptyQuery,
// ErrNoMatch, *AmbiguousMatchError or an ErrStoreUnavailable wrap when the
// token does not identify exactly one purchase.
func (r *Resolver) Resolve(ctx context.Context, token string) (Resolution, error) {
	q := strings.TrimSpace(token)
	if q == "" {
		r.metrics.ObserveResolve(metrics.OutcomeEmpty)
		return Resolution{}, ErrEmptyQuery
	}
	for _, s := range strategyOrder {
		matches, err := r.lookup(ctx, s, q)
		if err != nil {
			r.metrics.ObserveResolve(metrics.OutcomeStoreError)
			return Resolution{}, unavailable("resolve "+s.String(), err)
		}
		switch {
		case len(matches) == 0:
			continue
		case len(matches) == 1:
			r.metrics.ObserveResolve(metrics.OutcomeOne)
			return Resolution{Purchase: matches[0], Strategy: s}, nil
		default:
			r.metrics.ObserveResolve(metrics.OutcomeMany)
			return Resolution{}, &AmbiguousMatchError{Count: len(matches)}
		}
	}
	r.metrics.ObserveResolve(metrics.OutcomeNone)
	return Resolution{}, ErrNoMatch
}

func (r *Resolver) lookup(ctx context.Context, s Strategy, q string) ([]model.Purchase, error) {
	switch s {
	case ExactToken:
		p, err := r.gw.FindPurchaseByQRCode(ctx, q)
		if err != nil || p == nil {
			return nil, err
		}
		return []model.Purchase{*p}, nil
	case FuzzyText:
		return r.gw.SearchPurchases(ctx, q, FuzzyTextLimit)
	}
	return nil, nil
}
