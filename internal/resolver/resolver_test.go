package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/isp-ops/internal/acs"
	"github.com/taoyao-code/isp-ops/internal/billing"
	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/metrics"
	"github.com/taoyao-code/isp-ops/internal/phone"
)

type fakeProvider struct {
	devices []*device.Device
	err     error
	block   bool // hold until ctx ends
	calls   atomic.Int32
}

func (p *fakeProvider) Devices(ctx context.Context, force bool) ([]*device.Device, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.devices, nil
}

// fakeQuerier evaluates filters in memory the way the ACS does.
type fakeQuerier struct {
	devices []*device.Device
	fail    func(f acs.Filter) error
	// block holds matching queries until ctx ends
	block func(f acs.Filter) bool

	mu    sync.Mutex
	calls []acs.Filter
}

func (q *fakeQuerier) Query(ctx context.Context, f acs.Filter) ([]*device.Device, error) {
	q.mu.Lock()
	q.calls = append(q.calls, f)
	q.mu.Unlock()
	if q.block != nil && q.block(f) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if q.fail != nil {
		if err := q.fail(f); err != nil {
			return nil, err
		}
	}
	var out []*device.Device
	for _, d := range q.devices {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (q *fakeQuerier) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

type fakeBilling struct {
	customers  []*billing.Customer
	err        error
	phoneCalls atomic.Int32
}

func (b *fakeBilling) GetCustomerByPhone(_ context.Context, p string) (*billing.Customer, error) {
	b.phoneCalls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	for _, c := range b.customers {
		if phone.Normalize(c.Phone) == phone.Normalize(p) {
			return c, nil
		}
	}
	return nil, nil
}

func (b *fakeBilling) GetCustomerByPPPoE(_ context.Context, u string) (*billing.Customer, error) {
	for _, c := range b.customers {
		if c.PPPoEUsername == u {
			return c, nil
		}
	}
	return nil, nil
}

func (b *fakeBilling) GetCustomerBySerialNumber(_ context.Context, s string) (*billing.Customer, error) {
	for _, c := range b.customers {
		if c.SerialNumber == s {
			return c, nil
		}
	}
	return nil, nil
}

func leaf(v any) map[string]any { return map[string]any{"_value": v} }

func pppoeDevice(id, username string) *device.Device {
	return device.Parse(map[string]any{
		"_id":               id,
		"VirtualParameters": map[string]any{"pppoeUsername": leaf(username)},
	})
}

func taggedDevice(id string, tags ...any) *device.Device {
	return device.Parse(map[string]any{"_id": id, "_tags": tags})
}

func filler(n int) []*device.Device {
	out := make([]*device.Device, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pppoeDevice(fmt.Sprintf("ONT-%03d", i), fmt.Sprintf("user%03d", i)))
	}
	return out
}

func TestResolve_PPPoEExactPath(t *testing.T) {
	devs := append(filler(3), pppoeDevice("ONT-BUDI", "budi123"))
	p := &fakeProvider{devices: devs}
	q := &fakeQuerier{devices: devs}
	r := New(p, Options{Querier: q})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "ONT-BUDI", res.Device.ID)
	assert.Equal(t, StrategyExactPath, res.Strategy)
	assert.Equal(t, StrategyExactPath, res.Stage)
	assert.Equal(t, "VirtualParameters.pppoeUsername", res.Path)
	assert.Equal(t, "budi123", res.Value)
	assert.Equal(t, 1, q.count())
	assert.Zero(t, p.calls.Load())
}

func TestResolve_RegexStageDoesNotScan(t *testing.T) {
	devs := append(filler(3), pppoeDevice("ONT-BUDI", "BUDI123"))
	p := &fakeProvider{devices: devs}
	q := &fakeQuerier{devices: devs}
	r := New(p, Options{Querier: q})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, StrategyRegex, res.Strategy)
	assert.Equal(t, "VirtualParameters.pppoeUsername", res.Path)
	assert.Zero(t, p.calls.Load(), "full scan must not run")

	paths := len(r.Table().Paths("pppUsername"))
	assert.Equal(t, paths+2, q.count())
}

func TestResolve_OrQueryAfterExactStageFails(t *testing.T) {
	devs := []*device.Device{device.Parse(map[string]any{
		"_id": "ONT-TR181",
		"Device": map[string]any{"PPP": map[string]any{"Interface": map[string]any{"1": map[string]any{
			"Username": leaf("sari-home"),
		}}}},
	})}
	q := &fakeQuerier{devices: devs, fail: func(f acs.Filter) error {
		if len(f.Conditions) == 1 {
			return errors.New("acs timeout")
		}
		return nil
	}}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	r := New(&fakeProvider{devices: devs}, Options{Querier: q, Metrics: m})

	res, err := r.Resolve(context.Background(), "sari-home", KindPPPoE)
	require.NoError(t, err)
	assert.Equal(t, StrategyOrQuery, res.Strategy)
	assert.Equal(t, "Device.PPP.Interface.1.Username", res.Path)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("exact-path")))
}

func TestResolve_ExactPathFailureSkipsOnlyThatPath(t *testing.T) {
	devs := []*device.Device{device.Parse(map[string]any{
		"_id":               "ONT-ALT",
		"VirtualParameters": map[string]any{"pppoeUsername2": leaf("rina88")},
	})}
	q := &fakeQuerier{devices: devs, fail: func(f acs.Filter) error {
		if len(f.Conditions) == 1 && f.Conditions[0].Path == "VirtualParameters.pppoeUsername" {
			return errors.New("acs 502")
		}
		return nil
	}}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	r := New(&fakeProvider{devices: devs}, Options{Querier: q, Metrics: m})

	res, err := r.Resolve(context.Background(), "rina88", KindPPPoE)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, StrategyExactPath, res.Stage)
	assert.Equal(t, "VirtualParameters.pppoeUsername2", res.Path)
	assert.Equal(t, 2, q.count())
	assert.Zero(t, testutil.ToFloat64(m.StageErrors.WithLabelValues("exact-path")))
}

func TestResolve_TimedOutStageCountsAsNoMatch(t *testing.T) {
	devs := append(filler(3), pppoeDevice("ONT-BUDI", "budi123"))
	q := &fakeQuerier{devices: devs, block: func(f acs.Filter) bool { return len(f.Conditions) == 1 }}
	p := &fakeProvider{devices: devs}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	r := New(p, Options{Querier: q, Metrics: m, Timeouts: Timeouts{Exact: 20 * time.Millisecond}})

	start := time.Now()
	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "ONT-BUDI", res.Device.ID)
	assert.Equal(t, StrategyOrQuery, res.Stage)
	assert.Less(t, time.Since(start), time.Second)

	// the expired stage stops after its first query
	assert.Equal(t, 2, q.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("exact-path")))
	assert.Zero(t, p.calls.Load())
}

func TestResolve_OverallDeadlineBoundsEveryStage(t *testing.T) {
	q := &fakeQuerier{block: func(acs.Filter) bool { return true }}
	p := &fakeProvider{block: true}
	r := New(p, Options{Querier: q, Timeouts: Timeouts{Overall: 50 * time.Millisecond}})

	start := time.Now()
	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	took := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Found())
	assert.Less(t, took, time.Second)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestResolve_GuardRailSkipsScan(t *testing.T) {
	devs := append(filler(50), pppoeDevice("ONT-BUDI", "budi123"))
	require.Len(t, devs, 51)
	r := New(&fakeProvider{devices: devs}, Options{})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, OutcomeTooBroad, res.Outcome)
	assert.Equal(t, StrategyNone, res.Strategy)
}

func TestResolve_ScanWithinCeiling(t *testing.T) {
	devs := append(filler(49), pppoeDevice("ONT-BUDI", "budi123"))
	p := &fakeProvider{devices: devs}
	r := New(p, Options{})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, StrategyManualScan, res.Strategy)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestResolve_CeilingOverride(t *testing.T) {
	devs := append(filler(60), pppoeDevice("ONT-BUDI", "budi123"))
	r := New(&fakeProvider{devices: devs}, Options{FullScanCeiling: 100})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
}

func TestResolve_ScanTieBreaksOnCollectionOrder(t *testing.T) {
	devs := []*device.Device{pppoeDevice("ONT-A", "dup"), pppoeDevice("ONT-B", "dup")}
	r := New(&fakeProvider{devices: devs}, Options{})

	res, err := r.Resolve(context.Background(), "dup", KindPPPoE)
	require.NoError(t, err)
	assert.Equal(t, "ONT-A", res.Device.ID)
}

func TestResolve_PhoneCrossFormatTag(t *testing.T) {
	devs := append(filler(5), taggedDevice("ONT-TAG", "odp-07", "081234567890"))

	t.Run("pushdown", func(t *testing.T) {
		p := &fakeProvider{devices: devs}
		r := New(p, Options{Querier: &fakeQuerier{devices: devs}, Billing: &fakeBilling{}})

		res, err := r.Resolve(context.Background(), "6281234567890", KindPhone)
		require.NoError(t, err)
		require.True(t, res.Found())
		assert.Equal(t, "ONT-TAG", res.Device.ID)
		assert.Equal(t, StrategyTag, res.Strategy)
		assert.Equal(t, StrategyExactPath, res.Stage)
		assert.Equal(t, "081234567890", res.Value)
		assert.Nil(t, res.Customer)
		assert.Zero(t, p.calls.Load())
	})

	t.Run("scan only", func(t *testing.T) {
		r := New(&fakeProvider{devices: devs}, Options{})

		res, err := r.Resolve(context.Background(), "6281234567890", KindPhone)
		require.NoError(t, err)
		require.True(t, res.Found())
		assert.Equal(t, StrategyTag, res.Strategy)
		assert.Equal(t, StrategyManualScan, res.Stage)
		assert.Equal(t, "_tags", res.Path)
	})
}

func TestResolve_PhoneViaBillingPPPoE(t *testing.T) {
	devs := append(filler(3), pppoeDevice("ONT-BUDI", "budi123"))
	cust := &billing.Customer{ID: 7, Name: "Budi", Phone: "081234567890", PPPoEUsername: "budi123"}
	r := New(&fakeProvider{devices: devs}, Options{
		Querier: &fakeQuerier{devices: devs},
		Billing: &fakeBilling{customers: []*billing.Customer{cust}},
	})

	res, err := r.Resolve(context.Background(), "+6281234567890", KindPhone)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "ONT-BUDI", res.Device.ID)
	assert.Equal(t, StrategyExactPath, res.Strategy)
	assert.Same(t, cust, res.Customer)
}

func TestResolve_PhoneBillingMissFallsBackToTags(t *testing.T) {
	devs := []*device.Device{taggedDevice("ONT-TAG", "081234567890")}
	cust := &billing.Customer{ID: 7, Phone: "081234567890", PPPoEUsername: "gone-user"}
	r := New(&fakeProvider{devices: devs}, Options{Billing: &fakeBilling{customers: []*billing.Customer{cust}}})

	res, err := r.Resolve(context.Background(), "081234567890", KindPhone)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, StrategyTag, res.Strategy)
	assert.Same(t, cust, res.Customer)
}

func TestResolve_PhoneBillingLookedUpOnce(t *testing.T) {
	b := &fakeBilling{}
	r := New(&fakeProvider{}, Options{Billing: b})

	res, err := r.Resolve(context.Background(), "+62 812-3456-7890", KindPhone)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, int32(1), b.phoneCalls.Load())
}

func TestResolve_BillingFailureIsNotFatal(t *testing.T) {
	devs := []*device.Device{taggedDevice("ONT-TAG", "081234567890")}
	r := New(&fakeProvider{devices: devs}, Options{Billing: &fakeBilling{err: errors.New("db locked")}})

	res, err := r.Resolve(context.Background(), "081234567890", KindPhone)
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestResolve_SerialNumber(t *testing.T) {
	devs := []*device.Device{device.Parse(map[string]any{
		"_id":       "ONT-SN",
		"_deviceId": map[string]any{"_SerialNumber": "ZTEG1234ABCD"},
	})}
	cust := &billing.Customer{ID: 3, SerialNumber: "zteg1234abcd"}
	r := New(&fakeProvider{devices: devs}, Options{Billing: &fakeBilling{customers: []*billing.Customer{cust}}})

	res, err := r.Resolve(context.Background(), "zteg1234abcd", KindSerial)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, StrategySerial, res.Strategy)
	assert.Equal(t, StrategyManualScan, res.Stage)
	assert.Equal(t, "ZTEG1234ABCD", res.Value)
	assert.Same(t, cust, res.Customer)
}

func TestResolve_SyntheticNeverMatched(t *testing.T) {
	anon := device.Parse(map[string]any{"_tags": []any{"081234567890"}})
	require.True(t, anon.Synthetic)
	devs := []*device.Device{anon}
	r := New(&fakeProvider{devices: devs}, Options{Querier: &fakeQuerier{devices: devs}})

	res, err := r.Resolve(context.Background(), "081234567890", KindPhone)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestResolve_EarlyTransportErrorsSwallowed(t *testing.T) {
	devs := []*device.Device{pppoeDevice("ONT-BUDI", "budi123")}
	q := &fakeQuerier{fail: func(acs.Filter) error { return errors.New("connection refused") }}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	r := New(&fakeProvider{devices: devs}, Options{Querier: q, Metrics: m})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	assert.Equal(t, StrategyManualScan, res.Strategy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("exact-path")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("or-query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("regex")))
	// every exact path is tried once, then one query per disjunctive stage
	assert.Equal(t, len(r.Table().Paths("pppUsername"))+2, q.count())
}

func TestResolve_FinalTransportErrorSurfaces(t *testing.T) {
	p := &fakeProvider{err: errors.New("acs unreachable")}
	r := New(p, Options{})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "acs unreachable")
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Nil(t, res.Device)
}

func TestResolve_DegradesWhenFilterUnsupported(t *testing.T) {
	devs := []*device.Device{pppoeDevice("ONT-BUDI", "budi123")}
	q := &fakeQuerier{fail: func(acs.Filter) error { return acs.ErrFilterUnsupported }}
	p := &fakeProvider{devices: devs}
	r := New(p, Options{Querier: q})

	res, err := r.Resolve(context.Background(), "budi123", KindPPPoE)
	require.NoError(t, err)
	assert.Equal(t, StrategyManualScan, res.Strategy)
	assert.Equal(t, 1, q.count())
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestResolve_EmptyIdentifier(t *testing.T) {
	p := &fakeProvider{}
	r := New(p, Options{})

	res, err := r.Resolve(context.Background(), "   ", KindPhone)
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Zero(t, p.calls.Load())
}

func TestResolve_UnknownKind(t *testing.T) {
	p := &fakeProvider{}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	r := New(p, Options{Metrics: m})

	res, err := r.Resolve(context.Background(), "x", Kind("imei"))
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Zero(t, p.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveTotal.WithLabelValues("imei", "none", "not-found")))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("pppoe")
	assert.True(t, ok)
	assert.Equal(t, KindPPPoE, k)
	_, ok = ParseKind("PHONE")
	assert.False(t, ok)
}
