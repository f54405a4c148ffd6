package acs

import (
	"sync"
	"time"
)

// BreakerState of the ACS circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls flow
	BreakerOpen                         // calls refused until the cool-down passes
	BreakerHalfOpen                     // a few probes decide whether to close again
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker trips after threshold consecutive transport failures and refuses
// calls for cooldown. Application-level answers (4xx) are not failures.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	probeOK     int
	openedAt    time.Time
	trips       int64
	threshold   int
	cooldown    time.Duration
	probeBudget int
	now         func() time.Time
	onChange    func(from, to BreakerState)
}

// NewBreaker threshold <= 0 means 5, cooldown <= 0 means 30s.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold:   threshold,
		cooldown:    cooldown,
		probeBudget: 3,
		now:         time.Now,
	}
}

// OnStateChange registers a callback run on every transition.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow reports whether a call may proceed; it must be paired with Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.transition(BreakerHalfOpen)
		b.probes, b.probeOK = 1, 0
		return nil
	case BreakerHalfOpen:
		if b.probes >= b.probeBudget {
			return ErrTooManyRequests
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success {
		b.failures++
		switch b.state {
		case BreakerClosed:
			if b.failures >= b.threshold {
				b.trip()
			}
		case BreakerHalfOpen:
			b.trip()
		}
		return
	}

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.probeOK++
		if b.probeOK >= (b.probeBudget+1)/2 {
			b.transition(BreakerClosed)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats snapshot for the admin API.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:    b.state.String(),
		Failures: b.failures,
		Trips:    b.trips,
		OpenedAt: b.openedAt,
	}
}

type BreakerStats struct {
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	Trips    int64     `json:"trips"`
	OpenedAt time.Time `json:"opened_at"`
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.trips++
	b.transition(BreakerOpen)
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.onChange != nil {
		go b.onChange(from, to)
	}
}
