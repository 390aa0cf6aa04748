package task

import (
	"context"
	"fmt"
	"sync"
)

// Promise is the eventual outcome of an asynchronous operation. It settles
// exactly once.
type Promise struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	err       error
	callbacks []func(error)
}

// NewPromise creates an unsettled promise
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved returns a promise already settled with err
func Resolved(err error) *Promise {
	p := NewPromise()
	p.Resolve(err)
	return p
}

// Go runs fn on a new goroutine and settles the promise with its result.
// A panic in fn settles the promise with an error.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Promise {
	p := NewPromise()
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
			p.Resolve(err)
		}()
		err = fn(ctx)
	}()
	return p
}

// Resolve settles the promise. Only the first call has any effect; it
// reports whether this call settled the promise.
func (p *Promise) Resolve(err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(err)
	}
	close(p.done)
	return true
}

// Finally registers fn to run when the promise settles, success or failure.
// If already settled fn runs immediately on the calling goroutine.
func (p *Promise) Finally(fn func(err error)) *Promise {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return p
	}
	err := p.err
	p.mu.Unlock()
	fn(err)
	return p
}

// Track links an observer for this promise to obs and returns p
func (p *Promise) Track(obs Observer, message string) *Promise {
	if obs != nil {
		obs.LinkTo(ForPromise(p, message))
	}
	return p
}

// Done is closed when the promise settles, after Finally callbacks ran
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has settled
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Err returns the settlement error, or nil while unsettled
func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the promise settles or ctx is done
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
