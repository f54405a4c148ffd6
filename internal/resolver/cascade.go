package resolver

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/acs"
	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/params"
)

// search is one cascade run: any of values at any of paths.
type search struct {
	kind       Kind
	identifier string
	paths      []string
	values     []string
}

type hit struct {
	device *device.Device
	stage  Strategy
	path   string
	value  string
}

type cascadeResult struct {
	hit      *hit
	tooBroad bool
	// err is set only when the final attempted stage failed in transport
	err error
}

// cascade runs exact-path, or-query, regex and manual-scan in order and
// stops at the first stage with a real (non-synthetic) match.
func (r *Resolver) cascade(ctx context.Context, s search) cascadeResult {
	if len(s.paths) == 0 || len(s.values) == 0 {
		return cascadeResult{}
	}

	if r.querier != nil {
		h, degrade := r.pushdown(ctx, s)
		if h != nil {
			return cascadeResult{hit: h}
		}
		if degrade {
			r.log.Debug("filter pushdown unsupported, scanning",
				zap.String("kind", string(s.kind)), zap.String("identifier", s.identifier))
		}
	}
	return r.scan(ctx, s)
}

// pushdown runs stages 1-3 against the Querier. degrade is true when the
// provider cannot filter server-side.
func (r *Resolver) pushdown(ctx context.Context, s search) (*hit, bool) {
	// exact-path: values outer, paths inner, first non-empty result wins.
	// A failed query skips only its path; an expired stage ends the stage.
	sctx, cancel := context.WithTimeout(ctx, r.timeouts.Exact)
	var exactErr error
exact:
	for _, v := range s.values {
		for _, p := range s.paths {
			list, err := r.querier.Query(sctx, acs.Any(acs.Equals(p, v)))
			if errors.Is(err, acs.ErrFilterUnsupported) {
				cancel()
				return nil, true
			}
			if err != nil {
				exactErr = err
				if sctx.Err() != nil {
					break exact
				}
				continue
			}
			if d := firstReal(list); d != nil {
				cancel()
				return &hit{device: d, stage: StrategyExactPath, path: p, value: v}, false
			}
		}
	}
	cancel()
	if exactErr != nil {
		r.stageFailed(s, StrategyExactPath, exactErr)
	}

	// or-query: one disjunction over paths x values
	var conds []acs.Condition
	for _, v := range s.values {
		for _, p := range s.paths {
			conds = append(conds, acs.Equals(p, v))
		}
	}
	h, unsupported := r.disjunction(ctx, s, StrategyOrQuery, r.timeouts.Or, conds)
	if h != nil || unsupported {
		return h, unsupported
	}

	// regex: same disjunction, case-insensitive substring
	rx := make([]acs.Condition, 0, len(conds))
	for _, v := range s.values {
		for _, p := range s.paths {
			rx = append(rx, acs.Regex(p, regexp.QuoteMeta(v)))
		}
	}
	return r.disjunction(ctx, s, StrategyRegex, r.timeouts.Regex, rx)
}

func (r *Resolver) disjunction(ctx context.Context, s search, stage Strategy, timeout time.Duration, conds []acs.Condition) (*hit, bool) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	list, err := r.querier.Query(sctx, acs.Any(conds...))
	if errors.Is(err, acs.ErrFilterUnsupported) {
		return nil, true
	}
	if err != nil {
		r.stageFailed(s, stage, err)
		return nil, false
	}
	d := firstReal(list)
	if d == nil {
		return nil, false
	}
	h := &hit{device: d, stage: stage, value: s.values[0]}
	for _, c := range conds {
		if c.Match(d) {
			h.path = c.Path
			h.value = valueOf(c, s)
			break
		}
	}
	return h, false
}

// valueOf maps a condition back to the searched value it was built from.
func valueOf(c acs.Condition, s search) string {
	for _, v := range s.values {
		if c.Value == v || c.Value == regexp.QuoteMeta(v) {
			return v
		}
	}
	return c.Value
}

// scan is the last resort: values outer, devices in collection order, paths inner.
func (r *Resolver) scan(ctx context.Context, s search) cascadeResult {
	sctx, cancel := context.WithTimeout(ctx, r.timeouts.Scan)
	defer cancel()

	list, err := r.provider.Devices(sctx, false)
	if err != nil {
		r.stageFailed(s, StrategyManualScan, err)
		return cascadeResult{err: err}
	}
	if len(list) > r.ceiling {
		r.log.Info("device collection too large for full scan",
			zap.String("kind", string(s.kind)),
			zap.String("identifier", s.identifier),
			zap.Int("devices", len(list)),
			zap.Int("ceiling", r.ceiling))
		return cascadeResult{tooBroad: true}
	}

	for _, v := range s.values {
		for _, d := range list {
			if d == nil || d.Synthetic {
				continue
			}
			for _, p := range s.paths {
				if scanMatch(d, p, v) {
					return cascadeResult{hit: &hit{device: d, stage: StrategyManualScan, path: p, value: v}}
				}
			}
		}
	}
	return cascadeResult{}
}

// scanMatch compares the extracted value at path with exact string equality;
// the tag list matches on any element.
func scanMatch(d *device.Device, path, value string) bool {
	if path == params.TagsPath {
		return d.HasTag(value)
	}
	got, ok := params.Extract(d, []string{path})
	return ok && got.String() == value
}

func firstReal(list []*device.Device) *device.Device {
	for _, d := range list {
		if d != nil && !d.Synthetic {
			return d
		}
	}
	return nil
}

func (r *Resolver) stageFailed(s search, stage Strategy, err error) {
	r.metrics.StageError(string(stage))
	r.log.Warn("resolve stage failed",
		zap.String("strategy", string(stage)),
		zap.String("kind", string(s.kind)),
		zap.String("identifier", s.identifier),
		zap.Error(err))
}
