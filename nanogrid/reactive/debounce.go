package reactive

import (
	"sync"
	"time"
)

// DebounceSpec configures a debounced callback. The zero value means no
// debouncing.
type DebounceSpec struct {
	// Interval is the quiet period after the last call before the callback runs
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	// Leading runs the first call of a burst immediately
	Leading bool `json:"leading,omitempty" yaml:"leading,omitempty"`
	// MaxWait caps how long a burst can postpone the callback
	MaxWait time.Duration `json:"maxWait,omitempty" yaml:"maxWait,omitempty"`
}

// Debounce is shorthand for a trailing-edge spec with the given interval
func Debounce(interval time.Duration) DebounceSpec {
	return DebounceSpec{Interval: interval}
}

// IsZero reports whether s disables debouncing
func (s DebounceSpec) IsZero() bool {
	return s.Interval <= 0 && !s.Leading && s.MaxWait <= 0
}

// Debouncer collapses bursts of calls into one. Only the most recent
// callback of a burst runs (trailing edge).
type Debouncer struct {
	spec  DebounceSpec
	sched Scheduler

	mu         sync.Mutex
	timer      Timer
	pending    func()
	burstStart time.Time
	gen        int
}

// NewDebouncer creates a Debouncer; a nil scheduler means RealScheduler
func NewDebouncer(spec DebounceSpec, sched Scheduler) *Debouncer {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Debouncer{spec: spec, sched: sched}
}

// Call schedules fn, replacing any callback still waiting in this burst
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	now := d.sched.Now()
	idle := d.timer == nil
	if idle {
		d.burstStart = now
	}

	var runNow func()
	if idle && d.spec.Leading {
		runNow = fn
		d.pending = nil
	} else {
		d.pending = fn
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen

	wait := d.spec.Interval
	if d.spec.MaxWait > 0 {
		remaining := d.spec.MaxWait - now.Sub(d.burstStart)
		if remaining < 0 {
			remaining = 0
		}
		if remaining < wait {
			wait = remaining
		}
	}
	d.timer = d.sched.AfterFunc(wait, func() { d.fire(gen) })
	d.mu.Unlock()

	if runNow != nil {
		runNow()
	}
}

// Flush runs the waiting callback now, if any
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.reset()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Cancel drops the waiting callback
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
}

// Pending reports whether a callback is waiting to run
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(gen int) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	fn := d.reset()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// reset must be called with d.mu held
func (d *Debouncer) reset() func() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	fn := d.pending
	d.pending = nil
	return fn
}
