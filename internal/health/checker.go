package health

import (
	"context"
	"time"
)

// Status of one component or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // lookups still answer, with less data or slower
	StatusUnhealthy Status = "unhealthy" // lookups cannot answer
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// worse returns the more severe of a and b; unknown statuses count as unhealthy.
func worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// CheckResult is one checker's verdict.
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// measured stamps a result with the time spent since start.
func measured(start time.Time, status Status, message string, details map[string]any) CheckResult {
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}

// Checker probes one dependency of the resolution service.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
