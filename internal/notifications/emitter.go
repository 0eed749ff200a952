package notifications

import (
	"context"
	"sync"
	"time"

	"slotbook/pkg/logger"
	"slotbook/pkg/metrics"

	"github.com/google/uuid"
)

type EmitterConfig struct {
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
}

func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		BufferSize:     1024,
		Workers:        4,
		PublishTimeout: 5 * time.Second,
	}
}

// Emitter queues committed waitlist events and publishes them from a
// small worker pool. Notify never blocks: a full queue drops the event.
type Emitter struct {
	publisher Publisher
	config    EmitterConfig
	metrics   *metrics.Metrics
	logger    *logger.Logger

	queue   chan *Message
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	once    sync.Once
}

func NewEmitter(publisher Publisher, cfg EmitterConfig, m *metrics.Metrics, log *logger.Logger) *Emitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultEmitterConfig().BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultEmitterConfig().PublishTimeout
	}
	return &Emitter{
		publisher: publisher,
		config:    cfg,
		metrics:   m,
		logger:    log,
		queue:     make(chan *Message, cfg.BufferSize),
	}
}

// Notify implements reservations.Notifier.
func (e *Emitter) Notify(ctx context.Context, event string, userID, slotID uuid.UUID, payload map[string]interface{}) {
	msg := NewMessage(event, userID, slotID, payload)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		e.drop(ctx, msg, "emitter stopped")
		return
	}
	select {
	case e.queue <- msg:
	default:
		e.drop(ctx, msg, "queue full")
	}
}

func (e *Emitter) drop(ctx context.Context, msg *Message, reason string) {
	e.metrics.ObserveNotification(msg.Event, "dropped")
	e.logger.LogNotificationDropped(ctx, msg.Event, msg.UserID.String(), reason)
}

// Start launches the workers. Publishing outlives ctx so Stop can drain.
func (e *Emitter) Start(ctx context.Context) {
	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.logger.InfoContext(ctx, "notification emitter started", "workers", e.config.Workers)
}

func (e *Emitter) worker(id int) {
	defer e.wg.Done()
	for msg := range e.queue {
		e.publish(id, msg)
	}
}

func (e *Emitter) publish(workerID int, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.PublishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, msg); err != nil {
		e.metrics.ObserveNotification(msg.Event, "failed")
		e.logger.WarnContext(ctx, "notification publish failed",
			"worker", workerID,
			"event", msg.Event,
			"user_id", msg.UserID.String(),
			"error", err.Error(),
		)
		return
	}
	e.metrics.ObserveNotification(msg.Event, "sent")
}

// Stop rejects new events, publishes what is queued and waits for the workers.
func (e *Emitter) Stop() {
	e.once.Do(func() {
		e.mu.Lock()
		e.stopped = true
		close(e.queue)
		e.mu.Unlock()
		e.wg.Wait()
	})
}
