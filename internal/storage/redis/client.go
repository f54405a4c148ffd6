package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
)

// Client is the go-redis client shared by pending confirmations, chat
// message dedup and the health check.
type Client struct {
	*redis.Client
}

// NewClient connects and pings; it fails when Redis is disabled in cfg.
func NewClient(ctx context.Context, cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, errors.New("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// PoolUsage is the connection pool as the health check reports it.
type PoolUsage struct {
	TotalConns  uint32
	IdleConns   uint32
	Hits        uint32
	Misses      uint32
	Timeouts    uint32
	Utilization float64 // busy / total, 0 when the pool is empty
}

func (c *Client) Usage() PoolUsage {
	s := c.PoolStats()
	u := PoolUsage{
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
	}
	if s.TotalConns > 0 {
		u.Utilization = float64(s.TotalConns-s.IdleConns) / float64(s.TotalConns)
	}
	return u
}

// CountKeys counts keys matching pattern with SCAN, stopping at limit;
// truncated reports that the limit was reached.
func (c *Client) CountKeys(ctx context.Context, pattern string, limit int64) (n int64, truncated bool, err error) {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return n, false, fmt.Errorf("scan %s: %w", pattern, err)
		}
		n += int64(len(keys))
		if limit > 0 && n >= limit {
			return limit, true, nil
		}
		if next == 0 {
			return n, false, nil
		}
		cursor = next
	}
}
