package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL covers the redelivery window of the common gateways.
const DefaultDedupTTL = 10 * time.Minute

const dedupKeyPrefix = "chat:dedup:"

// DedupKeyPattern matches every remembered message id key.
const DedupKeyPattern = dedupKeyPrefix + "*"

// Deduper remembers gateway message ids; First reports true only for the
// first delivery of an id.
type Deduper interface {
	First(ctx context.Context, messageID string) (bool, error)
}

// RedisDeduper shares seen ids between instances with SET NX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) First(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, errors.New("empty message id")
	}
	return d.client.SetNX(ctx, dedupKeyPrefix+messageID, 1, d.ttl).Result()
}

// MemoryDeduper is the single-instance Deduper; expired ids are dropped lazily.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) First(_ context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, errors.New("empty message id")
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[messageID]; ok && now.Before(exp) {
		return false, nil
	}
	if len(d.seen) > 1024 {
		for id, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, id)
			}
		}
	}
	d.seen[messageID] = now.Add(d.ttl)
	return true, nil
}
