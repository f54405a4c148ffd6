// Package resolver maps a human identifier (phone number, PPPoE username,
// serial number) to at most one managed device.
//
// Each identifier runs through a cascade of increasingly expensive and fuzzy
// strategies: exact per-path query, one disjunctive query, a case-insensitive
// substring query, and finally a linear scan of the cached collection guarded
// by a size ceiling. Phone numbers go through billing first and fall back to
// searching device tags for every spelling of the number.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/billing"
	"github.com/taoyao-code/isp-ops/internal/metrics"
	"github.com/taoyao-code/isp-ops/internal/params"
	"github.com/taoyao-code/isp-ops/internal/phone"
)

type Options struct {
	Table *params.Table
	// Querier enables stages 1-3; nil means scan only
	Querier         Querier
	Billing         Billing
	Timeouts        Timeouts
	FullScanCeiling int
	Logger          *zap.Logger
	Metrics         *metrics.AppMetrics
}

type Resolver struct {
	provider Provider
	querier  Querier
	billing  Billing
	table    *params.Table
	timeouts Timeouts
	ceiling  int
	log      *zap.Logger
	metrics  *metrics.AppMetrics
}

// New builds a resolver over provider. When opts.Querier is nil and the
// provider itself can filter, the provider is used as the Querier.
func New(provider Provider, opts Options) *Resolver {
	q := opts.Querier
	if q == nil {
		q, _ = provider.(Querier)
	}
	if opts.Table == nil {
		opts.Table = params.DefaultTable()
	}
	if opts.FullScanCeiling <= 0 {
		opts.FullScanCeiling = DefaultFullScanCeiling
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Resolver{
		provider: provider,
		querier:  q,
		billing:  opts.Billing,
		table:    opts.Table,
		timeouts: opts.Timeouts.withDefaults(),
		ceiling:  opts.FullScanCeiling,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Table returns the path table the resolver extracts with.
func (r *Resolver) Table() *params.Table { return r.table }

// Resolve finds the device for identifier. "Not found" and "too broad" are
// normal outcomes with a nil error, as are an empty identifier and an unknown
// kind (not found, no I/O). The error is non-nil only when the last attempted
// stage failed to reach a collaborator, and wraps ErrTransport.
func (r *Resolver) Resolve(ctx context.Context, identifier string, kind Kind) (MatchResult, error) {
	start := time.Now()
	id := strings.TrimSpace(identifier)
	res := MatchResult{Strategy: StrategyNone, Stage: StrategyNone, Outcome: OutcomeNotFound}
	if id == "" {
		r.metrics.ObserveResolve(string(kind), string(res.Strategy), string(res.Outcome), time.Since(start))
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeouts.Overall)
	defer cancel()

	var err error
	switch kind {
	case KindPPPoE:
		res, err = r.byPPPoE(ctx, id)
	case KindSerial:
		res, err = r.bySerial(ctx, id)
	case KindPhone:
		res, err = r.byPhone(ctx, id)
	default:
		r.log.Debug("unknown identifier kind", zap.String("kind", string(kind)))
	}

	took := time.Since(start)
	r.metrics.ObserveResolve(string(kind), string(res.Strategy), string(res.Outcome), took)
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("identifier", id),
		zap.String("strategy", string(res.Strategy)),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("took", took),
	}
	switch {
	case err != nil:
		r.log.Warn("resolve failed", append(fields, zap.Error(err))...)
	case res.Found():
		r.log.Info("resolved device", append(fields, zap.String("device", res.Device.ID), zap.String("path", res.Path))...)
	default:
		r.log.Debug("no device matched", fields...)
	}
	return res, err
}

func (r *Resolver) byPPPoE(ctx context.Context, username string) (MatchResult, error) {
	cr := r.cascade(ctx, search{
		kind:       KindPPPoE,
		identifier: username,
		paths:      r.table.Paths(params.FieldPPPUsername),
		values:     []string{username},
	})
	res, err := result(cr, "")
	if res.Found() && r.billing != nil {
		res.Customer = r.lookup(ctx, "pppoe", username, r.billing.GetCustomerByPPPoE)
	}
	return res, err
}

func (r *Resolver) bySerial(ctx context.Context, serial string) (MatchResult, error) {
	values := []string{serial}
	if up := strings.ToUpper(serial); up != serial {
		values = append(values, up)
	}
	cr := r.cascade(ctx, search{
		kind:       KindSerial,
		identifier: serial,
		paths:      r.table.Paths(params.FieldSerialNumber),
		values:     values,
	})
	res, err := result(cr, StrategySerial)
	if res.Found() && r.billing != nil {
		res.Customer = r.lookup(ctx, "serial", serial, r.billing.GetCustomerBySerialNumber)
	}
	return res, err
}

// byPhone tries the billing record's PPPoE username and serial number first,
// then every spelling of the number against the device tags.
func (r *Resolver) byPhone(ctx context.Context, raw string) (MatchResult, error) {
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		variants = []string{raw}
	}

	// the billing store matches every spelling of the number in one lookup
	var cust *billing.Customer
	if r.billing != nil {
		cust = r.lookup(ctx, "phone", raw, r.billing.GetCustomerByPhone)
	}

	tooBroad := false
	if cust != nil && cust.PPPoEUsername != "" {
		res, _ := r.byPPPoE(ctx, cust.PPPoEUsername)
		if res.Found() {
			res.Customer = cust
			return res, nil
		}
		tooBroad = tooBroad || res.Outcome == OutcomeTooBroad
	}
	if cust != nil && cust.SerialNumber != "" {
		res, _ := r.bySerial(ctx, cust.SerialNumber)
		if res.Found() {
			res.Customer = cust
			return res, nil
		}
		tooBroad = tooBroad || res.Outcome == OutcomeTooBroad
	}

	cr := r.cascade(ctx, search{
		kind:       KindPhone,
		identifier: raw,
		paths:      []string{params.TagsPath},
		values:     variants,
	})
	if tooBroad && cr.hit == nil {
		cr.tooBroad = true
	}
	res, err := result(cr, StrategyTag)
	res.Customer = cust
	return res, err
}

// lookup calls a billing finder; failures are logged and read as "no customer".
func (r *Resolver) lookup(ctx context.Context, by, key string, find func(context.Context, string) (*billing.Customer, error)) *billing.Customer {
	c, err := find(ctx, key)
	if err != nil {
		r.log.Warn("billing lookup failed", zap.String("by", by), zap.String("key", key), zap.Error(err))
		return nil
	}
	return c
}

// result converts a cascade result; strategy "" reports the stage itself.
func result(cr cascadeResult, strategy Strategy) (MatchResult, error) {
	res := MatchResult{Strategy: StrategyNone, Stage: StrategyNone, Outcome: OutcomeNotFound}
	switch {
	case cr.hit != nil:
		res.Device = cr.hit.device
		res.Stage = cr.hit.stage
		res.Strategy = cr.hit.stage
		if strategy != "" {
			res.Strategy = strategy
		}
		res.Path = cr.hit.path
		res.Value = cr.hit.value
		res.Outcome = OutcomeMatched
		return res, nil
	case cr.err != nil:
		return res, fmt.Errorf("%w: %w", ErrTransport, cr.err)
	case cr.tooBroad:
		res.Outcome = OutcomeTooBroad
	}
	return res, nil
}
