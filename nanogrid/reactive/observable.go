package reactive

import "sync"

// Observable holds a value and notifies subscribers when it changes.
// Setting a value equal to the current one is a no-op. The zero value holds
// the zero T.
type Observable[T any] struct {
	mu     sync.RWMutex
	value  T
	equals func(a, b T) bool
	signal Signal
}

// ObservableOption configures an Observable
type ObservableOption[T any] func(*Observable[T])

// WithEquals overrides the equality used to suppress redundant notifications
func WithEquals[T any](fn func(a, b T) bool) ObservableOption[T] {
	return func(o *Observable[T]) {
		o.equals = fn
	}
}

// NewObservable creates an Observable holding initial
func NewObservable[T any](initial T, opts ...ObservableOption[T]) *Observable[T] {
	o := &Observable[T]{value: initial}
	for _, opt := range opts {
		opt(o)
	}
	if o.equals == nil {
		o.equals = func(a, b T) bool { return Equal(a, b) }
	}
	return o
}

func (o *Observable[T]) same(a, b T) bool {
	if o.equals == nil {
		return Equal(a, b)
	}
	return o.equals(a, b)
}

// Get returns the current value
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the value and notifies subscribers if it changed.
// It reports whether a change happened.
func (o *Observable[T]) Set(v T) bool {
	o.mu.Lock()
	if o.same(o.value, v) {
		o.mu.Unlock()
		return false
	}
	o.value = v
	o.mu.Unlock()

	o.signal.Notify()
	return true
}

// Update applies fn to the current value and stores the result
func (o *Observable[T]) Update(fn func(T) T) bool {
	o.mu.Lock()
	next := fn(o.value)
	if o.same(o.value, next) {
		o.mu.Unlock()
		return false
	}
	o.value = next
	o.mu.Unlock()

	o.signal.Notify()
	return true
}

// Subscribe implements Source
func (o *Observable[T]) Subscribe(fn func()) func() {
	return o.signal.Subscribe(fn)
}

// Value adapts Get for reaction track functions
func (o *Observable[T]) Value() any {
	return o.Get()
}
