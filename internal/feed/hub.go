package feed

import (
	"context"
	"sync"

	"github.com/iliyamo/event-gate/internal/metrics"
	"github.com/iliyamo/event-gate/internal/model"
)

// Hub is an in-process Broker.
type Hub struct {
	metrics *metrics.Gate

	mu      sync.Mutex
	streams map[*Stream]struct{}
}

func NewHub(m *metrics.Gate) *Hub {
	return &Hub{metrics: m, streams: make(map[*Stream]struct{})}
}

func (h *Hub) Publish(_ context.Context, ev model.ChangeEvent) error {
	h.mu.Lock()
	targets := make([]*Stream, 0, len(h.streams))
	for s := range h.streams {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if s.push(ev) {
			h.metrics.ObserveFeedEvent(ev.Table, ev.Type)
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, table string, mask model.EventMask) (*Stream, error) {
	s := newStream(table, mask)
	h.mu.Lock()
	h.streams[s] = struct{}{}
	h.mu.Unlock()
	s.start(ctx, func() {
		h.mu.Lock()
		delete(h.streams, s)
		h.mu.Unlock()
	})
	return s, nil
}

// Subscribers returns the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}
