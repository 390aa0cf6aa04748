package store

import "sync"

// OperationType selects the lock taken by LockManager.Execute. Reads share
// the lock; writes hold it exclusively.
type OperationType int

const (
	// ReadOperation only reads store state
	ReadOperation OperationType = iota
	// WriteOperation replaces records or the filter
	WriteOperation
)

// LockManager centralizes the store's locking so every method takes the
// right kind of lock and releases it on return, including on panic.
//
// Example:
//
//	err := lm.Execute(ReadOperation, func() error {
//	    n = len(s.records)
//	    return nil
//	})
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a lock manager ready for use
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn under a read or write lock
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// read runs fn under a read lock and returns its result
func read[T any](lm *LockManager, fn func() T) T {
	var out T
	_ = lm.Execute(ReadOperation, func() error {
		out = fn()
		return nil
	})
	return out
}
