package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout: slotbook:{module}:{kind}:{id}
const Prefix = "slotbook"

const (
	TTLRealtimeShort  = 30 * time.Second
	TTLRealtimeMedium = time.Minute
	TTLGeneration     = 24 * time.Hour
)

var ErrCacheMiss = errors.New("cache miss")

// SlotStatusKey is the key for a slot's capacity snapshot.
func SlotStatusKey(slotID string) string {
	return fmt.Sprintf("%s:slots:status:%s", Prefix, slotID)
}

// SlotStatusGenKey counts invalidations of a slot's status snapshot.
func SlotStatusGenKey(slotID string) string {
	return fmt.Sprintf("%s:slots:status-gen:%s", Prefix, slotID)
}

// Service is a JSON cache over Redis.
//
// Generation, SetAtGeneration and Bump guard read-through entries against
// a writer that invalidates between a reader's load and its Set: the reader
// takes the generation before loading and the Set is dropped if a Bump
// happened since.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Generation(ctx context.Context, genKey string) (int64, error)
	SetAtGeneration(ctx context.Context, key, genKey string, gen int64, value interface{}, ttl time.Duration) (bool, error)
	Bump(ctx context.Context, genKey string, keys ...string) error
	Ping(ctx context.Context) error
}

// KEYS[1] value key, KEYS[2] generation key
// ARGV[1] expected generation, ARGV[2] payload, ARGV[3] ttl in ms
var setAtGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type service struct {
	client *redis.Client
}

func NewService(client *redis.Client) Service {
	return &service{client: client}
}

func (s *service) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (s *service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (s *service) Generation(ctx context.Context, genKey string) (int64, error) {
	gen, err := s.client.Get(ctx, genKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache generation error: %w", err)
	}
	return gen, nil
}

func (s *service) SetAtGeneration(ctx context.Context, key, genKey string, gen int64, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache marshal error: %w", err)
	}
	stored, err := setAtGenerationScript.Run(ctx, s.client, []string{key, genKey},
		strconv.FormatInt(gen, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache set error: %w", err)
	}
	return stored == 1, nil
}

// Bump advances the generation and evicts keys in one transaction.
func (s *service) Bump(ctx context.Context, genKey string, keys ...string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLGeneration)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache bump error: %w", err)
	}
	return nil
}

func (s *service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
