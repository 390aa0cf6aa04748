package persist

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// MarkPersistent binds target to a provider. Saved state, if any, replaces
// the target's value; afterwards every change is written back, and a return
// to the initial value clears the saved state instead. The provider lives
// as long as owner.
//
// Persistence never fails the caller: any error is logged, the target keeps
// its value and nil is returned.
func MarkPersistent[T any](owner *reactive.Reactive, property string, target *reactive.Observable[T], opts Options, svc *Services) (provider *Provider) {
	logger := svc.logger().With("property", property)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failed to bind persisted state", "error", fmt.Errorf("panic: %v", r))
			provider = nil
		}
	}()

	opts = opts.Merge(Options{Path: property})
	p, err := Create(opts, svc)
	if err != nil {
		logger.Error("failed to create persistence provider", "error", err)
		return nil
	}
	logger = logger.With("type", p.Type(), "path", p.Path())
	owner.Manage(p)

	defaultState, err := toPlain(target.Get())
	if err != nil {
		logger.Error("failed to encode default state", "error", err)
		return nil
	}

	saved, ok, err := p.Read()
	switch {
	case err != nil:
		logger.Error("failed to read persisted state", "error", err)
	case ok:
		typed, err := decodeInto[T](saved)
		if err != nil {
			logger.Error("failed to decode persisted state", "error", err)
		} else {
			target.Set(typed)
		}
	}

	_, err = owner.AddReaction(reactive.ReactionSpec{
		Name: "persist " + property,
		Deps: []reactive.Source{target},
		Track: func() any {
			state, err := toPlain(target.Get())
			if err != nil {
				logger.Error("failed to encode state", "error", err)
				return nil
			}
			return state
		},
		Run: func(state any) {
			if reflect.DeepEqual(state, defaultState) {
				if err := p.Clear(); err != nil {
					logger.Error("failed to clear persisted state", "error", err)
				}
				return
			}
			p.Write(state)
		},
	})
	if err != nil {
		logger.Error("failed to watch state", "error", err)
		return nil
	}
	return p
}

// Persistent is an observable bound to persistence the first time it is
// read or written, using options resolved at that moment
type Persistent[T any] struct {
	*reactive.Observable[T]

	owner    *reactive.Reactive
	property string
	options  func() Options
	services *Services

	mu       sync.Mutex
	bound    bool
	provider *Provider
}

// NewPersistent creates an unbound Persistent holding initial
func NewPersistent[T any](owner *reactive.Reactive, property string, initial T, options func() Options, svc *Services) *Persistent[T] {
	return &Persistent[T]{
		Observable: reactive.NewObservable(initial),
		owner:      owner,
		property:   property,
		options:    options,
		services:   svc,
	}
}

// Get binds on first use and returns the current value
func (p *Persistent[T]) Get() T {
	p.bind()
	return p.Observable.Get()
}

// Set binds on first use and replaces the value
func (p *Persistent[T]) Set(v T) bool {
	p.bind()
	return p.Observable.Set(v)
}

// Update binds on first use and applies fn
func (p *Persistent[T]) Update(fn func(T) T) bool {
	p.bind()
	return p.Observable.Update(fn)
}

// Value implements reaction tracking
func (p *Persistent[T]) Value() any {
	return p.Get()
}

// Provider binds on first use and returns the provider, nil when binding
// failed
func (p *Persistent[T]) Provider() *Provider {
	p.bind()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provider
}

// Bound reports whether binding has been attempted
func (p *Persistent[T]) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound
}

// bind is marked done before restoring, so subscribers reading the value
// while saved state is applied see it without binding again
func (p *Persistent[T]) bind() {
	p.mu.Lock()
	if p.bound {
		p.mu.Unlock()
		return
	}
	p.bound = true
	p.mu.Unlock()

	var opts Options
	if p.options != nil {
		opts = p.options()
	}
	provider := MarkPersistent(p.owner, p.property, p.Observable, opts, p.services)
	p.mu.Lock()
	p.provider = provider
	p.mu.Unlock()
}
