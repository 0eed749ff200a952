package notifications

import (
	"context"
	"time"

	"slotbook/pkg/logger"
)

// deliverWithRetry hands msg to sink, backing off exponentially between attempts.
func deliverWithRetry(ctx context.Context, sink Publisher, msg *Message, maxRetries int, backoff time.Duration, log *logger.Logger) error {
	for attempt := 0; ; attempt++ {
		err := sink.Publish(ctx, msg)
		if err == nil {
			if attempt > 0 {
				log.DebugContext(ctx, "notification delivered after retries", "id", msg.ID.String(), "retries", attempt)
			}
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		delay := backoff * time.Duration(1<<attempt)
		log.DebugContext(ctx, "retrying notification delivery", "id", msg.ID.String(), "attempt", attempt+1, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
