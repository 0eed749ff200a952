package notifications

import (
	"context"
	"fmt"

	"slotbook/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Subscription is one listener's view of a user's notifications.
type Subscription struct {
	C     <-chan *Message
	close func() error
}

func (s *Subscription) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Subscriber opens live notification streams.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// RedisHub fans notifications out to every API instance over Redis pub/sub.
type RedisHub struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisHub(client *redis.Client, log *logger.Logger) *RedisHub {
	return &RedisHub{client: client, logger: log}
}

func (h *RedisHub) Publish(ctx context.Context, msg *Message) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := h.client.Publish(ctx, ChannelFor(msg.UserID), body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the database layer.
func (h *RedisHub) Close() error { return nil }

// Subscribe listens on the user's channel until ctx ends or the
// subscription is closed.
func (h *RedisHub) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, ChannelFor(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan *Message, 16)
	go func() {
		defer close(out)
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				msg, err := ParseMessage([]byte(raw.Payload))
				if err != nil {
					h.logger.Warn("dropping malformed notification", "channel", raw.Channel, "error", err.Error())
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{C: out, close: pubsub.Close}, nil
}
