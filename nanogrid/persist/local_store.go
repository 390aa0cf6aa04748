package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 100 * time.Millisecond
)

// ErrLockTimeout is returned when the store file stays locked by another
// process
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// LocalStore is a JSON file of key/value entries shared between processes.
// It plays the role of browser local storage for the localStorage provider.
// Every operation rereads the file under an exclusive file lock and writes
// through a temporary file.
type LocalStore struct {
	path        string
	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock

	mu sync.Mutex
}

// LocalStoreOption customizes a LocalStore
type LocalStoreOption func(*LocalStore)

// WithFileSystem sets the FileSystem used for the store file
func WithFileSystem(fs FileSystem) LocalStoreOption {
	return func(s *LocalStore) {
		s.fs = fs
	}
}

// WithFileLockFactory sets the factory for the cross-process lock
func WithFileLockFactory(factory FileLockFactory) LocalStoreOption {
	return func(s *LocalStore) {
		s.lockFactory = factory
	}
}

// OpenLocalStore opens the store at path. A missing file is an empty store;
// an unreadable one is an error.
func OpenLocalStore(path string, opts ...LocalStoreOption) (*LocalStore, error) {
	s := &LocalStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = OSFileSystem{}
	}
	if s.lockFactory == nil {
		s.lockFactory = FlockFactory{}
	}
	s.fileLock = s.lockFactory.New(path + ".lock")

	if err := s.withLock(func() error {
		_, err := s.load()
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the store file path
func (s *LocalStore) Path() string {
	return s.path
}

// Get decodes the entry under key
func (s *LocalStore) Get(key string) (value any, ok bool, err error) {
	err = s.withLock(func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}
		raw, found := entries[key]
		if !found {
			return nil
		}
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("failed to decode %q: %w", key, err)
		}
		ok = true
		return nil
	})
	return value, ok, err
}

// Set stores value under key
func (s *LocalStore) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.update(func(entries map[string]json.RawMessage) bool {
		entries[key] = data
		return true
	})
}

// Remove deletes the entry under key
func (s *LocalStore) Remove(key string) error {
	return s.update(func(entries map[string]json.RawMessage) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// Keys lists the stored keys, sorted
func (s *LocalStore) Keys() ([]string, error) {
	var keys []string
	err := s.withLock(func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}
		for k := range entries {
			keys = append(keys, k)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (s *LocalStore) update(fn func(entries map[string]json.RawMessage) bool) error {
	return s.withLock(func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}
		if !fn(entries) {
			return nil
		}
		return s.save(entries)
	})
}

func (s *LocalStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, s.path)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockTimeout, s.path)
	}
	defer func() { _ = s.fileLock.Unlock() }()
	return fn()
}

func (s *LocalStore) load() (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	data, err := s.fs.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *LocalStore) save(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	tmpFile := s.path + ".tmp"
	if err := s.fs.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpFile, s.path); err != nil {
		_ = s.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
