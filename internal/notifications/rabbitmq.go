package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slotbook/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher publishes notifications to a durable queue on the default exchange.
type RabbitPublisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, queue: queue}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held or before the publisher is shared.
func (p *RabbitPublisher) connect() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return fmt.Errorf("rabbitmq dial: %w", err)
		}
		p.conn = conn
		p.ch = nil
	}
	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("rabbitmq channel open: %w", err)
		}
		if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("rabbitmq queue declare: %w", err)
		}
		p.ch = ch
	}
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg *Message) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID.String(),
		Type:         msg.Event,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil && !p.ch.IsClosed() {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// RabbitConsumer drains the notification queue into sink, reconnecting
// with backoff when the broker goes away.
type RabbitConsumer struct {
	url        string
	queue      string
	sink       Publisher
	maxRetries int
	backoff    time.Duration
	logger     *logger.Logger
}

func NewRabbitConsumer(url, queue string, sink Publisher, maxRetries int, backoff time.Duration, log *logger.Logger) *RabbitConsumer {
	return &RabbitConsumer{
		url:        url,
		queue:      queue,
		sink:       sink,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log,
	}
}

// Run returns nil once ctx is cancelled.
func (c *RabbitConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("rabbitmq dial failed", "error", err.Error(), "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				break
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("rabbitmq consume loop ended, reconnecting", "error", err.Error())
			sleepCtx(ctx, 2*time.Second)
		}
	}
	c.logger.Info("rabbitmq consumer stopped")
	return nil
}

func (c *RabbitConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("rabbitmq set QoS failed", "error", err.Error())
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.logger.Info("rabbitmq consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Warn("notification not delivered", "error", err.Error())
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *RabbitConsumer) handle(ctx context.Context, body []byte) error {
	msg, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return deliverWithRetry(ctx, c.sink, msg, c.maxRetries, c.backoff, c.logger)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
