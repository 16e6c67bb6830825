package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/event-gate/internal/logger"
)

const maxBackoff = 30 * time.Second

// Consumer listens to the guest.checked_in queue and appends every event
// to a log file as a single human-friendly line.
type Consumer struct {
	url     string
	logPath string
	log     *logger.Logger

	mu sync.Mutex // serialises appends to logPath
}

func NewConsumer(url, logPath string, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{url: url, logPath: logPath, log: log}
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is cancelled.  Broker failures never end the loop: it reconnects with
// exponential backoff.  A message that cannot be handled is rejected
// without requeue so it cannot spin.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn(ctx, fmt.Sprintf("audit consumer: dial broker failed: %v; retrying in %s", err, backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, fmt.Sprintf("audit consumer: consume loop ended: %v; reconnecting", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn(ctx, "audit consumer: set QoS failed: "+err.Error())
	}
	if _, err := ch.QueueDeclare(GuestCheckedInQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(GuestCheckedInQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info(ctx, "audit consumer: consuming "+GuestCheckedInQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(d.Body); err != nil {
				c.log.Error(ctx, "audit consumer: handle message failed", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event and appends its line to the log file,
// creating the directory on first use.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev GuestCheckedInEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.GuestID == "" {
		return errors.New("event without guest_id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dir := filepath.Dir(c.logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as one newline-terminated log line.
func FormatLine(ev GuestCheckedInEvent) string {
	return fmt.Sprintf("[%s] Guest checked in | guest_id=%s | purchase_id=%s | guest=%q | order=%d | usher_id=%s | usher=%q\n",
		ev.CheckedInAt, ev.GuestID, ev.PurchaseID, ev.GuestName, ev.GuestOrder, ev.UsherID, ev.UsherName)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
