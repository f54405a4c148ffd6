package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/isp-ops/internal/acs"
)

// ACSProbe is the part of the ACS client the checker needs.
type ACSProbe interface {
	Ping(ctx context.Context) error
	Breaker() *acs.Breaker
	Limiter() *acs.RateLimiter
}

// ACSChecker reports the ACS unhealthy when unreachable and degraded while
// the breaker is probing.
type ACSChecker struct {
	client ACSProbe
}

func NewACSChecker(client ACSProbe) *ACSChecker {
	return &ACSChecker{client: client}
}

func (c *ACSChecker) Name() string { return "acs" }

func (c *ACSChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	stats := c.client.Breaker().Stats()
	details := map[string]any{
		"breaker": stats.State,
		"trips":   stats.Trips,
	}
	if l := c.client.Limiter(); l != nil {
		ls := l.Stats()
		details["rate_per_second"] = ls.RatePerSecond
		details["requests_granted"] = ls.GrantedTotal
		details["requests_abandoned"] = ls.AbandonedTotal
	}

	if err := c.client.Ping(ctx); err != nil {
		return measured(start, StatusUnhealthy, fmt.Sprintf("ping failed: %v", err), details)
	}
	if stats.State == acs.BreakerHalfOpen.String() {
		return measured(start, StatusDegraded, "circuit breaker half-open", details)
	}
	return measured(start, StatusHealthy, "ok", details)
}
