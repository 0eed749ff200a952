package reservations

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// withRetry runs a slot unit of work, retrying ErrConflict with capped
// exponential backoff. The whole call is bounded by TxTimeout; running out
// of attempts or time yields ErrBusy.
func (e *Engine) withRetry(ctx context.Context, op string, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() { e.metrics.ObserveTx(op, time.Since(start)) }()

	parent := ctx
	if e.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TxTimeout)
		defer cancel()
	}

	backoff := e.cfg.BaseBackoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if parent.Err() != nil {
			return parent.Err()
		}
		if ctx.Err() != nil {
			return wrapf(ErrBusy, "%s timed out after %d attempts", op, attempt)
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		e.metrics.ObserveRetry(op)
		e.logger.LogReservationConflict(ctx, op, slotID.String(), attempt, err)
		if attempt >= e.cfg.MaxAttempts {
			return wrapf(ErrBusy, "%s gave up after %d attempts", op, attempt)
		}

		timer := time.NewTimer(jitter(backoff))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			if parent.Err() != nil {
				return parent.Err()
			}
			return wrapf(ErrBusy, "%s timed out after %d attempts", op, attempt)
		}
		backoff = min(backoff*2, e.cfg.MaxBackoff)
	}
}

// jitter returns a duration in [d/2, d].
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := int64(d / 2)
	return time.Duration(half + rand.Int64N(half+1))
}
