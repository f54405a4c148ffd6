package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/isp-ops/internal/acs"
	redisstorage "github.com/taoyao-code/isp-ops/internal/storage/redis"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
}

func TestAggregatorFold(t *testing.T) {
	ctx := context.Background()

	t.Run("all healthy", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"acs", StatusHealthy}, &mockChecker{"billing", StatusHealthy})
		assert.Equal(t, StatusHealthy, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("degraded still ready", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"acs", StatusHealthy}, &mockChecker{"billing", StatusDegraded})
		assert.Equal(t, StatusDegraded, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("unhealthy wins", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"acs", StatusUnhealthy}, &mockChecker{"billing", StatusDegraded})
		assert.Equal(t, StatusUnhealthy, agg.OverallStatus(ctx))
		assert.False(t, agg.Ready(ctx))
		assert.True(t, agg.Alive())
	})
}

func TestAggregatorPerCheckTimeout(t *testing.T) {
	agg := NewAggregator(slowChecker{}, &mockChecker{"acs", StatusHealthy})
	agg.timeout = 20 * time.Millisecond

	start := time.Now()
	report := agg.Report(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, StatusHealthy, report.Checks["acs"].Status)
}

type fakeACS struct {
	err     error
	breaker *acs.Breaker
	limiter *acs.RateLimiter
}

func (f *fakeACS) Ping(ctx context.Context) error { return f.err }
func (f *fakeACS) Breaker() *acs.Breaker          { return f.breaker }
func (f *fakeACS) Limiter() *acs.RateLimiter      { return f.limiter }

func TestACSChecker(t *testing.T) {
	ctx := context.Background()

	ok := NewACSChecker(&fakeACS{breaker: acs.NewBreaker(1, time.Hour)})
	assert.Equal(t, "acs", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(ctx).Status)

	down := NewACSChecker(&fakeACS{err: errors.New("connection refused"), breaker: acs.NewBreaker(1, time.Hour)})
	res := down.Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "connection refused")
	assert.Equal(t, "closed", res.Details["breaker"])

	limited := NewACSChecker(&fakeACS{breaker: acs.NewBreaker(1, time.Hour), limiter: acs.NewRateLimiter(5, 10)})
	res = limited.Check(ctx)
	assert.Equal(t, 5, res.Details["rate_per_second"])
	assert.Equal(t, int64(0), res.Details["requests_granted"])
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusDegraded, worse(StatusHealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, worse(StatusUnhealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, worse(StatusHealthy, Status("bogus")))
}

type fakeRedis struct {
	pingErr  error
	usage    redisstorage.PoolUsage
	counts   map[string]int64
	countErr error
}

func (f *fakeRedis) HealthCheck(ctx context.Context) error { return f.pingErr }
func (f *fakeRedis) Usage() redisstorage.PoolUsage         { return f.usage }
func (f *fakeRedis) CountKeys(ctx context.Context, pattern string, limit int64) (int64, bool, error) {
	if f.countErr != nil {
		return 0, false, f.countErr
	}
	n := f.counts[pattern]
	if n >= limit {
		return limit, true, nil
	}
	return n, false, nil
}

func TestRedisChecker(t *testing.T) {
	ctx := context.Background()
	pending := KeyGauge{Name: "pending_confirmations", Pattern: "confirm:pending:*"}
	dedup := KeyGauge{Name: "chat_dedup_ids", Pattern: "chat:dedup:*"}

	t.Run("reports key counts", func(t *testing.T) {
		probe := &fakeRedis{
			usage:  redisstorage.PoolUsage{TotalConns: 4, IdleConns: 3, Utilization: 0.25},
			counts: map[string]int64{"confirm:pending:*": 3, "chat:dedup:*": keyCountLimit + 5},
		}
		res := NewRedisChecker(probe, pending, dedup).Check(ctx)
		assert.Equal(t, StatusHealthy, res.Status)
		assert.Equal(t, int64(3), res.Details["pending_confirmations"])
		assert.Equal(t, ">=10000", res.Details["chat_dedup_ids"])
		assert.Equal(t, "25.0%", res.Details["utilization"])
	})

	t.Run("ping failure is unhealthy", func(t *testing.T) {
		res := NewRedisChecker(&fakeRedis{pingErr: errors.New("refused")}, pending).Check(ctx)
		assert.Equal(t, StatusUnhealthy, res.Status)
	})

	t.Run("busy pool or scan failure degrades", func(t *testing.T) {
		busy := NewRedisChecker(&fakeRedis{usage: redisstorage.PoolUsage{Utilization: 0.95}}).Check(ctx)
		assert.Equal(t, StatusDegraded, busy.Status)

		scan := NewRedisChecker(&fakeRedis{countErr: errors.New("NOPERM")}, pending).Check(ctx)
		assert.Equal(t, StatusDegraded, scan.Status)
		assert.Contains(t, scan.Message, "pending_confirmations")
	})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestBillingCheckerDegradesOnly(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, NewBillingChecker(fakePinger{}).Check(ctx).Status)
	assert.Equal(t, StatusDegraded, NewBillingChecker(fakePinger{err: errors.New("locked")}).Check(ctx).Status)
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(agg *Aggregator, path string) int {
		r := gin.New()
		RegisterHTTPRoutes(r, agg)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	healthy := NewAggregator(&mockChecker{"acs", StatusHealthy})
	broken := NewAggregator(&mockChecker{"acs", StatusUnhealthy})

	assert.Equal(t, http.StatusOK, serve(healthy, "/health"))
	assert.Equal(t, http.StatusOK, serve(healthy, "/health/ready"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(broken, "/health"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(broken, "/health/ready"))
	assert.Equal(t, http.StatusOK, serve(broken, "/health/live"))
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())
	r.SetStarted(true)
	assert.True(t, r.Ready())
	r.SetDraining(true)
	assert.False(t, r.Ready())
}
