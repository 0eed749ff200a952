package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"slotbook/pkg/cache"
	"slotbook/pkg/logger"
)

// RedisStatusCache keeps slot status snapshots in Redis. Cache failures are
// logged and treated as misses; the store stays the source of truth.
type RedisStatusCache struct {
	cache  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisStatusCache(svc cache.Service, ttl time.Duration, log *logger.Logger) *RedisStatusCache {
	if ttl <= 0 {
		ttl = cache.TTLRealtimeShort
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &RedisStatusCache{cache: svc, ttl: ttl, logger: log}
}

func (c *RedisStatusCache) Get(ctx context.Context, slotID uuid.UUID) (*SlotStatus, bool) {
	var st SlotStatus
	if err := c.cache.Get(ctx, cache.SlotStatusKey(slotID.String()), &st); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.WarnContext(ctx, "slot status cache read failed", "slot_id", slotID.String(), "error", err.Error())
		}
		return nil, false
	}
	return &st, true
}

func (c *RedisStatusCache) Generation(ctx context.Context, slotID uuid.UUID) (int64, bool) {
	gen, err := c.cache.Generation(ctx, cache.SlotStatusGenKey(slotID.String()))
	if err != nil {
		c.logger.WarnContext(ctx, "slot status generation read failed", "slot_id", slotID.String(), "error", err.Error())
		return 0, false
	}
	return gen, true
}

// Set stores the snapshot unless the slot was invalidated after gen was read.
func (c *RedisStatusCache) Set(ctx context.Context, st *SlotStatus, gen int64) {
	id := st.SlotID.String()
	stored, err := c.cache.SetAtGeneration(ctx, cache.SlotStatusKey(id), cache.SlotStatusGenKey(id), gen, st, c.ttl)
	if err != nil {
		c.logger.WarnContext(ctx, "slot status cache write failed", "slot_id", id, "error", err.Error())
		return
	}
	if !stored {
		c.logger.DebugContext(ctx, "stale slot status not cached", "slot_id", id, "generation", gen)
	}
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, slotID uuid.UUID) {
	id := slotID.String()
	if err := c.cache.Bump(ctx, cache.SlotStatusGenKey(id), cache.SlotStatusKey(id)); err != nil {
		c.logger.WarnContext(ctx, "slot status cache evict failed", "slot_id", id, "error", err.Error())
	}
}
