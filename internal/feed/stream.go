// Package feed carries row-level change notifications from the store to
// every gate device.  Hub fans out inside one process; Redis fans out
// across processes over Redis pub/sub.
package feed

import (
	"context"
	"sync"

	"github.com/iliyamo/event-gate/internal/model"
)

// Broker publishes change events and opens filtered streams of them.
type Broker interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
	Subscribe(ctx context.Context, table string, mask model.EventMask) (*Stream, error)
}

// Stream is one subscriber's view of the feed.  Delivery never blocks the
// publisher: events queue up per stream until the reader takes them.
type Stream struct {
	table string
	mask  model.EventMask
	out   chan model.ChangeEvent

	mu    sync.Mutex
	queue []model.ChangeEvent
	wake  chan struct{}

	done    chan struct{}
	once    sync.Once
	onClose func()
}

func newStream(table string, mask model.EventMask) *Stream {
	return &Stream{
		table: table,
		mask:  mask,
		out:   make(chan model.ChangeEvent),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// start begins delivery and ties the stream's lifetime to ctx.  onClose
// runs once when the stream ends.
func (s *Stream) start(ctx context.Context, onClose func()) {
	s.onClose = onClose
	go s.pump()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
}

// Events returns the delivery channel.  It is closed once the stream ends.
func (s *Stream) Events() <-chan model.ChangeEvent { return s.out }

// Close ends the stream.  It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// matches reports whether ev passes the stream's table and mask filter.
func (s *Stream) matches(ev model.ChangeEvent) bool {
	return ev.Table == s.table && s.mask.Has(ev.Type)
}

// push queues ev for delivery and returns false when it was filtered out.
func (s *Stream) push(ev model.ChangeEvent) bool {
	if !s.matches(ev) {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
