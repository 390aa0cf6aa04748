package reactive

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending scheduled callback
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Hosts construct one and pass it
// down to every component that debounces.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// RealScheduler schedules on the wall clock
type RealScheduler struct{}

// AfterFunc implements Scheduler
func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Now implements Scheduler
func (RealScheduler) Now() time.Time {
	return time.Now()
}

// TimerRegistry wraps a Scheduler and tracks live timers so a host can stop
// all of them on shutdown.
type TimerRegistry struct {
	base   Scheduler
	mu     sync.Mutex
	nextID int
	live   map[int]Timer
}

// NewTimerRegistry creates a registry over base; nil means RealScheduler
func NewTimerRegistry(base Scheduler) *TimerRegistry {
	if base == nil {
		base = RealScheduler{}
	}
	return &TimerRegistry{base: base, live: make(map[int]Timer)}
}

type registeredTimer struct {
	reg *TimerRegistry
	id  int
	t   Timer
}

func (rt *registeredTimer) Stop() bool {
	rt.reg.forget(rt.id)
	return rt.t.Stop()
}

// AfterFunc implements Scheduler
func (r *TimerRegistry) AfterFunc(d time.Duration, fn func()) Timer {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	t := r.base.AfterFunc(d, func() {
		r.forget(id)
		fn()
	})

	r.mu.Lock()
	r.live[id] = t
	r.mu.Unlock()
	return &registeredTimer{reg: r, id: id, t: t}
}

// Now implements Scheduler
func (r *TimerRegistry) Now() time.Time {
	return r.base.Now()
}

// Len returns the number of timers that have neither fired nor been stopped
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// StopAll stops every live timer
func (r *TimerRegistry) StopAll() {
	r.mu.Lock()
	timers := make([]Timer, 0, len(r.live))
	for id, t := range r.live {
		timers = append(timers, t)
		delete(r.live, id)
	}
	r.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

func (r *TimerRegistry) forget(id int) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}

// ManualScheduler is a virtual clock for tests. Callbacks only run from
// Advance, on the caller's goroutine.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewManualScheduler creates a virtual clock starting at start
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// AfterFunc implements Scheduler
func (m *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{s: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now implements Scheduler
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d, running due callbacks in time order.
// Timers scheduled by those callbacks also run if they fall due within d.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.popDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()
		t.fn()
	}
}

// Pending returns the number of timers waiting to fire
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// popDue must be called with m.mu held
func (m *ManualScheduler) popDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	t := m.timers[0]
	t.fired = true
	m.timers = m.timers[1:]
	return t
}
