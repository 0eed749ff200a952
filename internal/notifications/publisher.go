package notifications

import (
	"context"

	"slotbook/pkg/logger"
)

// Publisher hands a message to a transport.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// LogPublisher writes messages to the log. Used when no transport is configured.
type LogPublisher struct {
	logger *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(ctx context.Context, msg *Message) error {
	p.logger.InfoContext(ctx, "notification",
		"id", msg.ID.String(),
		"event", msg.Event,
		"user_id", msg.UserID.String(),
		"slot_id", msg.SlotID.String(),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
