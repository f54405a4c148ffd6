package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/acs"
	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/devicecache"
	"github.com/taoyao-code/isp-ops/internal/metrics"
	"github.com/taoyao-code/isp-ops/internal/params"
	"github.com/taoyao-code/isp-ops/internal/resolver"
)

// NewACSClient builds the ACS client from config.
func NewACSClient(cfg cfgpkg.ACSConfig, log *zap.Logger, appm *metrics.AppMetrics) (*acs.Client, error) {
	client, err := acs.New(acs.Options{
		BaseURL:          cfg.BaseURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		Timeout:          cfg.Timeout,
		Retries:          cfg.Retries,
		RatePerSec:       cfg.RatePerSec,
		Burst:            cfg.Burst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
		ServerFilter:     cfg.ServerFilter,
		Logger:           log.Named("acs"),
		Metrics:          appm,
	})
	if err != nil {
		return nil, err
	}
	log.Info("acs client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("server_filter", cfg.ServerFilter),
		zap.Int("rate_per_sec", cfg.RatePerSec))
	return client, nil
}

// NewDeviceCache builds the collection cache and drops it on every ACS write.
func NewDeviceCache(cfg cfgpkg.CacheConfig, client *acs.Client, log *zap.Logger, appm *metrics.AppMetrics) *devicecache.Cache {
	cache := devicecache.New(client, devicecache.Options{
		TTL:          cfg.TTL,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log.Named("devicecache"),
		Metrics:      appm,
	})
	client.OnMutation(cache.InvalidateDevice)
	return cache
}

// NewResolver wires the cascade: pushdown through the ACS client, scans over
// the cache, billing for phone lookups.
func NewResolver(cfg cfgpkg.ResolverConfig, cache *devicecache.Cache, client *acs.Client, billingStore resolver.Billing, log *zap.Logger, appm *metrics.AppMetrics) (*resolver.Resolver, error) {
	table := params.DefaultTable()
	if cfg.PathTablePath != "" {
		t, err := params.LoadTable(cfg.PathTablePath)
		if err != nil {
			return nil, fmt.Errorf("load path table: %w", err)
		}
		table = t
		log.Info("path table loaded", zap.String("path", cfg.PathTablePath))
	}

	return resolver.New(cache, resolver.Options{
		Table:   table,
		Querier: client,
		Billing: billingStore,
		Timeouts: resolver.Timeouts{
			Exact:   cfg.ExactTimeout,
			Or:      cfg.OrTimeout,
			Regex:   cfg.RegexTimeout,
			Scan:    cfg.ScanTimeout,
			Overall: cfg.OverallDeadline,
		},
		FullScanCeiling: cfg.FullScanCeiling,
		Logger:          log.Named("resolver"),
		Metrics:         appm,
	}), nil
}
