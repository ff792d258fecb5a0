package queue

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisHashKey = "encbench:queue"

func init() {
	Register("redis", func(cfg Config) (Store, error) {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("queue: redis backend requires an address")
		}
		return &RedisStore{rdb: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})}, nil
	})
}

// RedisStore keeps queued items in a single hash keyed by item name, for
// fleets that share one retry queue across machines.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client; tests hand in miniredis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, item Item) error {
	return s.rdb.HSet(ctx, redisHashKey, item.Name, item.Payload).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]Item, error) {
	raw, err := s.rdb.HGetAll(ctx, redisHashKey).Result()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(raw))
	for name, payload := range raw {
		items = append(items, Item{Name: name, Payload: []byte(payload)})
	}
	sortItems(items)
	return items, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	return s.rdb.HDel(ctx, redisHashKey, name).Err()
}
