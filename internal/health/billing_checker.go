package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is any store that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BillingChecker pings the billing store. Without billing the resolver still
// works from tags, so a failure only degrades the service.
type BillingChecker struct {
	store Pinger
}

func NewBillingChecker(store Pinger) *BillingChecker {
	return &BillingChecker{store: store}
}

func (c *BillingChecker) Name() string { return "billing" }

func (c *BillingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.store.Ping(ctx); err != nil {
		return measured(start, StatusDegraded, fmt.Sprintf("ping failed: %v", err), nil)
	}
	return measured(start, StatusHealthy, "ok", nil)
}
