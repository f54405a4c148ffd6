package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// confirm:pending:{requester} -> Pending JSON, expiring with the confirmation
const keyPendingPrefix = "confirm:pending:"

// RedisKeyPattern matches every pending confirmation key.
const RedisKeyPattern = keyPendingPrefix + "*"

// RedisStore shares pending confirmations between instances; expiry is left to Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Put(ctx context.Context, p Pending) (Pending, error) {
	p = stamp(p, s.now(), s.ttl)
	b, err := json.Marshal(p)
	if err != nil {
		return p, fmt.Errorf("confirm: encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPendingPrefix+p.Requester, b, s.ttl).Err(); err != nil {
		return p, fmt.Errorf("confirm: set: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Take(ctx context.Context, requester string) (*Pending, error) {
	b, err := s.client.GetDel(ctx, keyPendingPrefix+requester).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("confirm: getdel: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("confirm: decode: %w", err)
	}
	if !s.now().Before(p.ExpiresAt) {
		return nil, nil
	}
	return &p, nil
}

func (s *RedisStore) Cancel(ctx context.Context, requester string) (bool, error) {
	n, err := s.client.Del(ctx, keyPendingPrefix+requester).Result()
	if err != nil {
		return false, fmt.Errorf("confirm: del: %w", err)
	}
	return n > 0, nil
}

// Purge is a no-op: keys carry their own TTL.
func (s *RedisStore) Purge(context.Context) (int, error) { return 0, nil }
