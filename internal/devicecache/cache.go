// Package devicecache keeps a short-lived snapshot of the full device
// collection so repeated lookups do not refetch it from the ACS.
package devicecache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/metrics"
)

const (
	DefaultTTL          = 60 * time.Second
	DefaultFetchTimeout = 15 * time.Second

	flightKey = "devices"
)

// Fetcher loads the full device collection.
type Fetcher interface {
	ListDevices(ctx context.Context) ([]*device.Device, error)
}

type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.AppMetrics
}

type snapshot struct {
	devices   []*device.Device
	fetchedAt time.Time
	gen       uint64
}

// Cache serves the device collection from an immutable snapshot and
// collapses concurrent misses into one fetch.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.AppMetrics
	now          func() time.Time

	snap    atomic.Pointer[snapshot]
	gen     atomic.Uint64
	fetches atomic.Int64
	group   singleflight.Group
}

func New(f Fetcher, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache{
		fetcher:      f,
		ttl:          opts.TTL,
		fetchTimeout: opts.FetchTimeout,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

// Devices returns the cached collection, fetching when the snapshot is
// missing, expired, invalidated or force is set. The returned slice is
// shared and must not be modified.
func (c *Cache) Devices(ctx context.Context, force bool) ([]*device.Device, error) {
	if !force {
		if s := c.fresh(); s != nil {
			c.metrics.CacheRequest("hit")
			return s.devices, nil
		}
		c.metrics.CacheRequest("miss")
	} else {
		c.metrics.CacheRequest("refresh")
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fetch(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*device.Device), nil
	}
}

func (c *Cache) fresh() *snapshot {
	s := c.snap.Load()
	if s == nil || s.gen != c.gen.Load() {
		return nil
	}
	if c.now().Sub(s.fetchedAt) >= c.ttl {
		return nil
	}
	return s
}

// fetch runs detached from the first caller's cancellation; waiters that
// give up early must not abort the fetch for the others.
func (c *Cache) fetch(ctx context.Context) ([]*device.Device, error) {
	gen := c.gen.Load()
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	c.fetches.Add(1)
	start := c.now()
	list, err := c.fetcher.ListDevices(fctx)
	if err != nil {
		c.metrics.CacheFetch("error", 0)
		c.log.Warn("device collection fetch failed", zap.Error(err))
		return nil, err
	}

	if c.gen.Load() != gen {
		c.metrics.CacheFetch("discarded", len(list))
		c.log.Debug("device collection fetch outdated by invalidation", zap.Int("devices", len(list)))
		return list, nil
	}
	c.snap.Store(&snapshot{devices: list, fetchedAt: c.now(), gen: gen})
	c.metrics.CacheFetch("ok", len(list))
	c.log.Debug("device collection refreshed", zap.Int("devices", len(list)), zap.Duration("took", c.now().Sub(start)))
	return list, nil
}

// Invalidate drops the snapshot; the next call fetches. A fetch already in
// flight still answers its waiters but does not publish its result.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
	c.group.Forget(flightKey)
}

// InvalidateDevice adapts Invalidate to the ACS mutation hook signature.
func (c *Cache) InvalidateDevice(string) { c.Invalidate() }

// Stats is a point-in-time view for the admin API.
type Stats struct {
	Size       int       `json:"size"`
	FetchedAt  time.Time `json:"fetched_at"`
	Fresh      bool      `json:"fresh"`
	Generation uint64    `json:"generation"`
	Fetches    int64     `json:"fetches"`
}

func (c *Cache) Stats() Stats {
	st := Stats{Generation: c.gen.Load(), Fetches: c.fetches.Load()}
	if s := c.snap.Load(); s != nil {
		st.Size = len(s.devices)
		st.FetchedAt = s.fetchedAt
		st.Fresh = c.fresh() != nil
	}
	return st
}
