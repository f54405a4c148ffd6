package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/confirm"
	"github.com/taoyao-code/isp-ops/internal/devicecache"
)

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler registers the periodic jobs: purging expired confirmations
// and, when cache.warmSpec is set, refreshing the device cache ahead of use.
// The caller starts and stops the returned scheduler.
func NewScheduler(confirmCfg cfgpkg.ConfirmConfig, cacheCfg cfgpkg.CacheConfig, pending confirm.Store, cache *devicecache.Cache, log *zap.Logger) (*cron.Cron, error) {
	clog := cronLogger{log: log.Named("cron").Sugar()}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	if confirmCfg.PurgeSpec != "" {
		if _, err := c.AddFunc(confirmCfg.PurgeSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			n, err := pending.Purge(ctx)
			if err != nil {
				log.Warn("purge confirmations failed", zap.Error(err))
				return
			}
			if n > 0 {
				log.Debug("expired confirmations purged", zap.Int("count", n))
			}
		}); err != nil {
			return nil, fmt.Errorf("confirm.purgeSpec %q: %w", confirmCfg.PurgeSpec, err)
		}
	}

	if cacheCfg.WarmSpec != "" {
		if _, err := c.AddFunc(cacheCfg.WarmSpec, func() {
			devices, err := cache.Devices(context.Background(), true)
			if err != nil {
				log.Warn("device cache warm failed", zap.Error(err))
				return
			}
			log.Debug("device cache warmed", zap.Int("devices", len(devices)))
		}); err != nil {
			return nil, fmt.Errorf("cache.warmSpec %q: %w", cacheCfg.WarmSpec, err)
		}
	}
	return c, nil
}
