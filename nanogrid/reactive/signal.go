// Package reactive provides the change-notification primitives the grid
// filter models are built on: signals, observables, managed reactions with
// explicit dependencies, debouncing and an injectable scheduler.
package reactive

import (
	"reflect"
	"sync"
)

// Source is anything that can notify subscribers of a change.
// Subscribe returns a function that removes the subscription.
type Source interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Signal is a bare change notifier. The zero value is ready to use.
// Subscribers are invoked synchronously, in subscription order, outside
// of any internal lock.
type Signal struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func()
}

// Subscribe registers fn to be called on every Notify
func (s *Signal) Subscribe(fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify calls every current subscriber
func (s *Signal) Notify() {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
}

// Len returns the number of live subscriptions
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Equal compares two values by identity for comparable values and by deep
// equality for values that cannot be compared with ==.
func Equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return a == b
}

// Merge returns a Source that fires whenever any of sources fires
func Merge(sources ...Source) Source {
	return merged(sources)
}

type merged []Source

func (m merged) Subscribe(fn func()) func() {
	unsubs := make([]func(), 0, len(m))
	for _, src := range m {
		unsubs = append(unsubs, src.Subscribe(fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
