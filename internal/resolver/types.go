package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/taoyao-code/isp-ops/internal/acs"
	"github.com/taoyao-code/isp-ops/internal/billing"
	"github.com/taoyao-code/isp-ops/internal/device"
)

// Kind of identifier being resolved.
type Kind string

const (
	KindPhone  Kind = "phone"
	KindPPPoE  Kind = "pppoe"
	KindSerial Kind = "serial"
)

// ParseKind accepts the lowercase kind names.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindPhone, KindPPPoE, KindSerial:
		return Kind(s), true
	}
	return "", false
}

// Strategy names the technique that produced a match.
type Strategy string

const (
	StrategyExactPath  Strategy = "exact-path"
	StrategyOrQuery    Strategy = "or-query"
	StrategyRegex      Strategy = "regex"
	StrategyManualScan Strategy = "manual-scan"
	StrategyTag        Strategy = "tag"
	StrategySerial     Strategy = "serial-number"
	StrategyNone       Strategy = "none"
)

// Outcome separates a match from the two kinds of "nothing".
type Outcome string

const (
	OutcomeMatched  Outcome = "matched"
	OutcomeNotFound Outcome = "not-found"
	// OutcomeTooBroad the collection exceeded the full-scan ceiling
	OutcomeTooBroad Outcome = "too-broad"
)

// DefaultFullScanCeiling caps the collection size the resolver is willing to
// scan linearly; larger fleets get OutcomeTooBroad instead of a slow reply.
const DefaultFullScanCeiling = 50

// ErrTransport wraps a collaborator failure on the last attempted stage.
var ErrTransport = errors.New("resolver: transport failure")

// MatchResult is shared by every caller surface.
type MatchResult struct {
	Device   *device.Device
	Strategy Strategy
	// Stage is the cascade stage that produced the match, none otherwise
	Stage Strategy
	// Path and Value are the candidate path and searched value that matched;
	// Path is empty when the ACS matched a disjunction it could not attribute
	Path     string
	Value    string
	Customer *billing.Customer
	Outcome  Outcome
}

// Found reports whether a device was matched.
func (r MatchResult) Found() bool { return r.Outcome == OutcomeMatched && r.Device != nil }

// Provider serves the full device collection (normally the device cache).
type Provider interface {
	Devices(ctx context.Context, force bool) ([]*device.Device, error)
}

// Querier pushes a filter down to the ACS. Returning acs.ErrFilterUnsupported
// makes the resolver fall back to a scan.
type Querier interface {
	Query(ctx context.Context, f acs.Filter) ([]*device.Device, error)
}

// Billing is the read side of the billing store. GetCustomerByPhone matches
// every spelling of the number (see phone.Variants) itself.
type Billing interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*billing.Customer, error)
	GetCustomerByPPPoE(ctx context.Context, username string) (*billing.Customer, error)
	GetCustomerBySerialNumber(ctx context.Context, serial string) (*billing.Customer, error)
}

// Timeouts per cascade stage; every stage is also bounded by Overall.
type Timeouts struct {
	Exact   time.Duration
	Or      time.Duration
	Regex   time.Duration
	Scan    time.Duration
	Overall time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Exact:   3 * time.Second,
		Or:      5 * time.Second,
		Regex:   8 * time.Second,
		Scan:    15 * time.Second,
		Overall: 30 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Exact <= 0 {
		t.Exact = d.Exact
	}
	if t.Or <= 0 {
		t.Or = d.Or
	}
	if t.Regex <= 0 {
		t.Regex = d.Regex
	}
	if t.Scan <= 0 {
		t.Scan = d.Scan
	}
	if t.Overall <= 0 {
		t.Overall = d.Overall
	}
	return t
}
