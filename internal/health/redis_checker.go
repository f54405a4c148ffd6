package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/isp-ops/internal/storage/redis"
)

// keyCountLimit stops SCAN early on a busy shared instance.
const keyCountLimit = 10000

// RedisProbe is the part of the Redis client the checker needs.
type RedisProbe interface {
	HealthCheck(ctx context.Context) error
	Usage() redisstorage.PoolUsage
	CountKeys(ctx context.Context, pattern string, limit int64) (int64, bool, error)
}

// KeyGauge names a key family reported by the Redis check, such as the
// pending reboot confirmations.
type KeyGauge struct {
	Name    string
	Pattern string
}

// RedisChecker pings Redis, watches pool pressure and counts the service's
// own keys.
type RedisChecker struct {
	client RedisProbe
	gauges []KeyGauge
}

func NewRedisChecker(client RedisProbe, gauges ...KeyGauge) *RedisChecker {
	return &RedisChecker{client: client, gauges: gauges}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return measured(start, StatusUnhealthy, fmt.Sprintf("ping failed: %v", err), nil)
	}

	pool := c.client.Usage()
	details := map[string]any{
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
		"timeouts":    pool.Timeouts,
		"utilization": fmt.Sprintf("%.1f%%", pool.Utilization*100),
	}
	status, message := StatusHealthy, "ok"
	if pool.Utilization > 0.9 {
		status, message = StatusDegraded, "connection pool near limit"
	}

	for _, g := range c.gauges {
		n, truncated, err := c.client.CountKeys(ctx, g.Pattern, keyCountLimit)
		if err != nil {
			status, message = worse(status, StatusDegraded), fmt.Sprintf("count %s: %v", g.Name, err)
			continue
		}
		if truncated {
			details[g.Name] = fmt.Sprintf(">=%d", n)
			continue
		}
		details[g.Name] = n
	}
	return measured(start, status, message, details)
}
