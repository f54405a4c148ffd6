package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds every individual checker.
const DefaultCheckTimeout = 3 * time.Second

// Aggregator runs checkers concurrently and folds their results.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: DefaultCheckTimeout}
}

// AddChecker registers another checker.
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// CheckAll runs every checker concurrently, each under its own timeout.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	timeout := a.timeout
	a.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			res := c.Check(cctx)

			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results
}

// fold keeps the most severe status of all results.
func fold(results map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, r := range results {
		overall = worse(overall, r.Status)
	}
	return overall
}

// OverallStatus runs all checkers and folds the results.
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return fold(a.CheckAll(ctx))
}

// Ready is false only when something is unhealthy; degraded still serves.
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Alive always holds while the process can answer.
func (a *Aggregator) Alive() bool {
	return true
}

// HealthReport is the /health payload.
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report runs the checkers once and builds the full report.
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	results := a.CheckAll(ctx)
	return HealthReport{Status: fold(results), Timestamp: time.Now(), Checks: results}
}
