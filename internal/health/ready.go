package health

import "sync/atomic"

// Readiness gates /readyz on startup and shutdown, independent of the
// dependency checks: not ready until bootstrap finishes, and not ready again
// once draining starts.
type Readiness struct {
	started  atomic.Bool
	draining atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStarted(v bool)  { r.started.Store(v) }
func (r *Readiness) SetDraining(v bool) { r.draining.Store(v) }

func (r *Readiness) Ready() bool {
	return r.started.Load() && !r.draining.Load()
}
