package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/chat"
	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/confirm"
	"github.com/taoyao-code/isp-ops/internal/health"
	redisstorage "github.com/taoyao-code/isp-ops/internal/storage/redis"
)

// NewRedisClient returns nil, nil when Redis is disabled.
func NewRedisClient(ctx context.Context, cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// AddRedisChecker adds the Redis checker when Redis is in use; it also
// reports how many confirmations and chat message ids Redis holds.
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient == nil {
		return
	}
	aggregator.AddChecker(health.NewRedisChecker(redisClient,
		health.KeyGauge{Name: "pending_confirmations", Pattern: confirm.RedisKeyPattern},
		health.KeyGauge{Name: "chat_dedup_ids", Pattern: chat.DedupKeyPattern},
	))
}
