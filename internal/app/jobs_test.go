package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/confirm"
	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/devicecache"
)

type staticFetcher struct{}

func (staticFetcher) ListDevices(ctx context.Context) ([]*device.Device, error) {
	return []*device.Device{device.Parse(map[string]any{"_id": "dev-1"})}, nil
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	cache := devicecache.New(staticFetcher{}, devicecache.Options{})
	store := confirm.NewMemoryStore(time.Minute)

	c, err := NewScheduler(
		cfgpkg.ConfirmConfig{PurgeSpec: "@every 1m"},
		cfgpkg.CacheConfig{WarmSpec: "*/5 * * * *"},
		store, cache, zap.NewNop(),
	)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	c, err = NewScheduler(cfgpkg.ConfirmConfig{PurgeSpec: "@every 1m"}, cfgpkg.CacheConfig{}, store, cache, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	cache := devicecache.New(staticFetcher{}, devicecache.Options{})
	_, err := NewScheduler(cfgpkg.ConfirmConfig{PurgeSpec: "every minute"}, cfgpkg.CacheConfig{}, confirm.NewMemoryStore(0), cache, zap.NewNop())
	assert.Error(t, err)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://ops:****@db:5432/billing", maskDSN("postgres://ops:s3cret@db:5432/billing"))
	assert.Equal(t, "host=db dbname=billing", maskDSN("host=db dbname=billing"))
}
