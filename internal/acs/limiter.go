package acs

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter caps the request rate towards the ACS with a token bucket.
type RateLimiter struct {
	limiter    *rate.Limiter
	ratePerSec int
	burst      int
	granted    atomic.Int64
	abandoned  atomic.Int64
}

// NewRateLimiter ratePerSec is the steady rate, burst the bucket size.
func NewRateLimiter(ratePerSec int, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait blocks until a token is available or ctx ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.abandoned.Add(1)
		return err
	}
	l.granted.Add(1)
	return nil
}

// Stats snapshot for the admin API.
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond:  l.ratePerSec,
		Burst:          l.burst,
		GrantedTotal:   l.granted.Load(),
		AbandonedTotal: l.abandoned.Load(),
	}
}

type RateLimiterStats struct {
	RatePerSecond  int   `json:"rate_per_second"`
	Burst          int   `json:"burst"`
	GrantedTotal   int64 `json:"granted_total"`
	AbandonedTotal int64 `json:"abandoned_total"`
}
