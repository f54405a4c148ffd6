package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/confirm"
	redisstorage "github.com/taoyao-code/isp-ops/internal/storage/redis"
)

// NewConfirmStore shares pending confirmations through Redis when it is
// enabled, so any instance behind the gateway can take a "ya".
func NewConfirmStore(cfg cfgpkg.ConfirmConfig, redisClient *redisstorage.Client, log *zap.Logger) confirm.Store {
	if redisClient != nil {
		log.Info("confirmation store: redis", zap.Duration("ttl", cfg.TTL))
		return confirm.NewRedisStore(redisClient.Client, cfg.TTL)
	}
	log.Info("confirmation store: memory", zap.Duration("ttl", cfg.TTL))
	return confirm.NewMemoryStore(cfg.TTL)
}
