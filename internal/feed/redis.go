package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/metrics"
	"github.com/iliyamo/event-gate/internal/model"
)

// ChannelPrefix namespaces the pub/sub channels, one per table.
const ChannelPrefix = "gate:changes:"

// Channel returns the pub/sub channel for table.
func Channel(table string) string { return ChannelPrefix + table }

// Redis is a Broker backed by Redis pub/sub.  Every gate process that
// shares the Redis instance sees every change.
type Redis struct {
	rdb     *redis.Client
	log     *logger.Logger
	metrics *metrics.Gate
}

func NewRedis(rdb *redis.Client, log *logger.Logger, m *metrics.Gate) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{rdb: rdb, log: log, metrics: m}
}

func (r *Redis) Publish(ctx context.Context, ev model.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := r.rdb.Publish(ctx, Channel(ev.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so any
// change published after it returns is delivered.
func (r *Redis) Subscribe(ctx context.Context, table string, mask model.EventMask) (*Stream, error) {
	ps := r.rdb.Subscribe(ctx, Channel(table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(table), err)
	}

	s := newStream(table, mask)
	s.start(ctx, func() { _ = ps.Close() })

	go func() {
		for msg := range ps.Channel() {
			var ev model.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn(ctx, "dropping undecodable change event on "+msg.Channel+": "+err.Error())
				continue
			}
			if s.push(ev) {
				r.metrics.ObserveFeedEvent(ev.Table, ev.Type)
			}
		}
	}()
	return s, nil
}
