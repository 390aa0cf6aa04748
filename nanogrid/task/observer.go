// Package task tracks the pending state of asynchronous operations so that
// models can mask themselves while loads and commits are in flight.
package task

import (
	"sync"

	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// Observer reports whether one or more operations are pending
type Observer interface {
	IsPending() bool
	PendingCount() int
	// Message describes the pending work; empty when idle
	Message() string
	SetMessage(msg string)
	// LinkTo attaches a subtask. Leaf observers ignore it.
	LinkTo(task Observer)
	// Clear drops tracking without affecting the underlying operations
	Clear()
	reactive.Source
}

// Mode controls how a Compound handles newly linked subtasks
type Mode string

const (
	// ModeAll accumulates subtasks
	ModeAll Mode = "all"
	// ModeLast tracks only the most recently linked subtask
	ModeLast Mode = "last"
)

// Compound is pending while its own flag is set or any subtask is pending
type Compound struct {
	mode Mode

	mu       sync.RWMutex
	message  string
	pending  bool
	subtasks []linked
	signal   reactive.Signal
}

type linked struct {
	task  Observer
	unsub func()
}

// TrackAll creates an observer that accumulates every linked task
func TrackAll(message string, tasks ...Observer) *Compound {
	c := newCompound(ModeAll, message)
	for _, t := range tasks {
		c.attach(t)
	}
	return c
}

// TrackLast creates an observer that only follows the latest linked task.
// Earlier tasks keep running but no longer affect the pending state.
func TrackLast(message string) *Compound {
	return newCompound(ModeLast, message)
}

func newCompound(mode Mode, message string) *Compound {
	return &Compound{mode: mode, message: message}
}

// Mode returns the linking mode
func (c *Compound) Mode() Mode {
	return c.mode
}

// IsPending implements Observer
func (c *Compound) IsPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending {
		return true
	}
	for _, s := range c.subtasks {
		if s.task.IsPending() {
			return true
		}
	}
	return false
}

// PendingCount implements Observer
func (c *Compound) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	if c.pending {
		n++
	}
	for _, s := range c.subtasks {
		n += s.task.PendingCount()
	}
	return n
}

// Message returns the first pending subtask's message, falling back to this
// observer's own message while pending
func (c *Compound) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pending := c.pending
	for _, s := range c.subtasks {
		if !s.task.IsPending() {
			continue
		}
		pending = true
		if msg := s.task.Message(); msg != "" {
			return msg
		}
	}
	if !pending {
		return ""
	}
	return c.message
}

// SetMessage implements Observer
func (c *Compound) SetMessage(msg string) {
	c.mu.Lock()
	changed := c.message != msg
	c.message = msg
	c.mu.Unlock()
	if changed {
		c.signal.Notify()
	}
}

// SetPending sets this observer's own pending flag
func (c *Compound) SetPending(pending bool) {
	c.mu.Lock()
	changed := c.pending != pending
	c.pending = pending
	c.mu.Unlock()
	if changed {
		c.signal.Notify()
	}
}

// LinkTo attaches task. In ModeLast it replaces every previous subtask; in
// ModeAll resolved promise observers are pruned first.
func (c *Compound) LinkTo(task Observer) {
	if task == nil {
		return
	}
	c.attach(task)
	c.signal.Notify()
}

func (c *Compound) attach(task Observer) {
	unsub := task.Subscribe(c.signal.Notify)

	c.mu.Lock()
	var dropped []linked
	if c.mode == ModeLast {
		dropped = c.subtasks
		c.subtasks = nil
	} else {
		keep := c.subtasks[:0:0]
		for _, s := range c.subtasks {
			if _, once := s.task.(*PromiseObserver); once && !s.task.IsPending() {
				dropped = append(dropped, s)
				continue
			}
			keep = append(keep, s)
		}
		c.subtasks = keep
	}
	c.subtasks = append(c.subtasks, linked{task: task, unsub: unsub})
	c.mu.Unlock()

	for _, s := range dropped {
		s.unsub()
	}
}

// Subtasks returns the currently tracked subtasks
func (c *Compound) Subtasks() []Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Observer, len(c.subtasks))
	for i, s := range c.subtasks {
		out[i] = s.task
	}
	return out
}

// Clear implements Observer
func (c *Compound) Clear() {
	c.mu.Lock()
	dropped := c.subtasks
	c.subtasks = nil
	c.pending = false
	c.mu.Unlock()

	for _, s := range dropped {
		s.unsub()
	}
	c.signal.Notify()
}

// Subscribe implements reactive.Source. Subscribers are notified whenever
// this observer or any subtask changes.
func (c *Compound) Subscribe(fn func()) func() {
	return c.signal.Subscribe(fn)
}

// PromiseObserver is pending until its promise settles, then idle for good
type PromiseObserver struct {
	mu      sync.RWMutex
	pending bool
	message string
	signal  reactive.Signal
}

// ForPromise observes p. The observer turns idle when p settles, whether or
// not it failed; the error stays on p.
func ForPromise(p *Promise, message string) *PromiseObserver {
	o := &PromiseObserver{pending: true, message: message}
	p.Finally(func(error) { o.Clear() })
	return o
}

// IsPending implements Observer
func (o *PromiseObserver) IsPending() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pending
}

// PendingCount implements Observer
func (o *PromiseObserver) PendingCount() int {
	if o.IsPending() {
		return 1
	}
	return 0
}

// Message implements Observer
func (o *PromiseObserver) Message() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.pending {
		return ""
	}
	return o.message
}

// SetMessage implements Observer
func (o *PromiseObserver) SetMessage(msg string) {
	o.mu.Lock()
	o.message = msg
	o.mu.Unlock()
	o.signal.Notify()
}

// LinkTo implements Observer; promise observers have no subtasks
func (o *PromiseObserver) LinkTo(Observer) {}

// Clear marks the observer idle
func (o *PromiseObserver) Clear() {
	o.mu.Lock()
	changed := o.pending
	o.pending = false
	o.mu.Unlock()
	if changed {
		o.signal.Notify()
	}
}

// Subscribe implements reactive.Source
func (o *PromiseObserver) Subscribe(fn func()) func() {
	return o.signal.Subscribe(fn)
}
