// Package service holds integrations the check-in core talks to through
// interfaces, starting with the RabbitMQ audit publisher.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/queue"
)

// AuditPublisher publishes a GuestCheckedInEvent to the guest.checked_in
// queue for every check-in.  The connection is opened on first use and
// reopened after a failure.  Messages are marked as persistent.
type AuditPublisher struct {
	url string
	log *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAuditPublisher(url string, log *logger.Logger) *AuditPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditPublisher{url: url, log: log}
}

// PublishCheckIn never panics; any error is logged and returned so the
// caller can choose to ignore it.
func (p *AuditPublisher) PublishCheckIn(ctx context.Context, guest model.Guest) error {
	body, err := json.Marshal(queue.NewGuestCheckedInEvent(guest))
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		p.log.Error(ctx, "rabbitmq: open channel failed", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                        // default exchange
		queue.GuestCheckedInQueue, // routing key = queue name
		false,                     // mandatory
		false,                     // immediate
		pub,
	); err != nil {
		p.log.Error(ctx, "rabbitmq: publish failed", err)
		p.resetLocked()
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (p *AuditPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.GuestCheckedInQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AuditPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
