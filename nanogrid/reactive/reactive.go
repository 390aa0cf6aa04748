package reactive

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidReaction is returned when a reaction spec sets both or neither
	// of Track and When, or has no Run
	ErrInvalidReaction = errors.New("invalid reaction")
	// ErrDestroyed is returned when adding reactions to a destroyed owner
	ErrDestroyed = errors.New("reactive owner destroyed")
)

// Disposer tears down a reaction. Calling it more than once is safe.
type Disposer func()

// Destroyer is anything whose lifetime can be chained to a Reactive owner
type Destroyer interface {
	Destroy()
}

// ReactionSpec describes a reaction with an explicit dependency list.
// Exactly one of Track or When must be set.
type ReactionSpec struct {
	// Name labels the reaction in errors
	Name string
	// Deps are the sources whose notifications re-evaluate Track or When
	Deps []Source
	// Track computes the watched value; Run fires when it changes
	Track func() any
	// When is a predicate; Run fires once when it becomes true, after which
	// the reaction disposes itself
	When func() bool
	// Run receives the tracked value (or true for When reactions)
	Run func(value any)
	// Debounce delays Run; a zero spec runs synchronously
	Debounce DebounceSpec
	// FireImmediately runs Run with the initial tracked value
	FireImmediately bool
	// Equals compares successive tracked values; defaults to Equal
	Equals func(a, b any) bool
}

// AutorunSpec describes a callback re-run whenever any dependency changes
type AutorunSpec struct {
	Name     string
	Deps     []Source
	Run      func()
	Debounce DebounceSpec
}

// Reactive manages the reactions owned by a model. Embed it (or hold one)
// and call Destroy when the model is torn down. The zero value is ready to
// use and schedules on the wall clock.
type Reactive struct {
	mu        sync.Mutex
	disposers []Disposer
	destroyed bool
	scheduler Scheduler
}

// UseScheduler sets the scheduler used for debounced reactions created
// afterwards
func (r *Reactive) UseScheduler(s Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduler = s
}

// Scheduler returns the scheduler for this owner
func (r *Reactive) Scheduler() Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return RealScheduler{}
	}
	return r.scheduler
}

// AddReaction installs a reaction and registers it for disposal on Destroy
func (r *Reactive) AddReaction(spec ReactionSpec) (Disposer, error) {
	if (spec.Track == nil) == (spec.When == nil) {
		return nil, fmt.Errorf("%w %q: exactly one of Track or When is required", ErrInvalidReaction, spec.Name)
	}
	if spec.Run == nil {
		return nil, fmt.Errorf("%w %q: Run is required", ErrInvalidReaction, spec.Name)
	}
	if r.IsDestroyed() {
		return nil, ErrDestroyed
	}

	rx := &reaction{spec: spec, equals: spec.Equals}
	if rx.equals == nil {
		rx.equals = Equal
	}
	if !spec.Debounce.IsZero() {
		rx.debouncer = NewDebouncer(spec.Debounce, r.Scheduler())
	}

	dispose := r.register(rx.dispose)
	rx.self = dispose

	if spec.When != nil {
		rx.subscribe()
		rx.checkWhen()
		return dispose, nil
	}

	initial := spec.Track()
	rx.mu.Lock()
	rx.last = initial
	rx.mu.Unlock()
	rx.subscribe()
	if spec.FireImmediately {
		rx.run(initial)
	}
	return dispose, nil
}

// AddAutorun runs spec.Run now and again whenever a dependency notifies
func (r *Reactive) AddAutorun(spec AutorunSpec) (Disposer, error) {
	if spec.Run == nil {
		return nil, fmt.Errorf("%w %q: Run is required", ErrInvalidReaction, spec.Name)
	}
	run := spec.Run
	return r.AddReaction(ReactionSpec{
		Name:            spec.Name,
		Deps:            spec.Deps,
		Track:           func() any { return nil },
		Equals:          func(a, b any) bool { return false },
		Run:             func(any) { run() },
		Debounce:        spec.Debounce,
		FireImmediately: true,
	})
}

// Manage chains d's lifetime to this owner
func (r *Reactive) Manage(d Destroyer) {
	if d == nil {
		return
	}
	r.OnDestroy(d.Destroy)
}

// OnDestroy registers fn to run on Destroy. If the owner is already
// destroyed fn runs immediately.
func (r *Reactive) OnDestroy(fn func()) {
	r.register(fn)
}

// Destroy runs every registered disposer. Repeated calls are no-ops.
func (r *Reactive) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	disposers := r.disposers
	r.disposers = nil
	r.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}

// IsDestroyed reports whether Destroy has run
func (r *Reactive) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func (r *Reactive) register(fn func()) Disposer {
	var once sync.Once
	d := Disposer(func() { once.Do(fn) })

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		d()
		return d
	}
	r.disposers = append(r.disposers, d)
	r.mu.Unlock()
	return d
}

type reaction struct {
	spec      ReactionSpec
	equals    func(a, b any) bool
	debouncer *Debouncer
	self      Disposer

	mu       sync.Mutex
	last     any
	unsubs   []func()
	disposed bool
	fired    bool
}

func (rx *reaction) subscribe() {
	unsubs := make([]func(), 0, len(rx.spec.Deps))
	for _, dep := range rx.spec.Deps {
		unsubs = append(unsubs, dep.Subscribe(rx.onChange))
	}
	rx.mu.Lock()
	if rx.disposed {
		rx.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	rx.unsubs = unsubs
	rx.mu.Unlock()
}

func (rx *reaction) onChange() {
	if rx.spec.When != nil {
		rx.checkWhen()
		return
	}

	next := rx.spec.Track()
	rx.mu.Lock()
	if rx.disposed || rx.equals(rx.last, next) {
		rx.mu.Unlock()
		return
	}
	rx.last = next
	rx.mu.Unlock()
	rx.run(next)
}

func (rx *reaction) checkWhen() {
	if !rx.spec.When() {
		return
	}
	rx.mu.Lock()
	if rx.disposed || rx.fired {
		rx.mu.Unlock()
		return
	}
	rx.fired = true
	rx.mu.Unlock()

	rx.self()
	rx.spec.Run(true)
}

func (rx *reaction) run(value any) {
	if rx.debouncer == nil {
		rx.spec.Run(value)
		return
	}
	rx.debouncer.Call(func() {
		rx.mu.Lock()
		disposed := rx.disposed
		rx.mu.Unlock()
		if !disposed {
			rx.spec.Run(value)
		}
	})
}

func (rx *reaction) dispose() {
	rx.mu.Lock()
	rx.disposed = true
	unsubs := rx.unsubs
	rx.unsubs = nil
	rx.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if rx.debouncer != nil {
		rx.debouncer.Cancel()
	}
}
