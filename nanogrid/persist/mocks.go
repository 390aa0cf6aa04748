package persist

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MockFileSystem is an in-memory FileSystem for tests. The *Error fields
// make the matching operation fail.
type MockFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte

	StatError      error
	ReadFileError  error
	WriteFileError error
	RenameError    error
	RemoveError    error

	// Writes counts successful WriteFile calls
	Writes int
}

type mockFileInfo struct {
	name string
	size int64
}

func (fi mockFileInfo) Name() string       { return fi.name }
func (fi mockFileInfo) Size() int64        { return fi.size }
func (fi mockFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi mockFileInfo) IsDir() bool        { return false }
func (fi mockFileInfo) Sys() any           { return nil }

// NewMockFileSystem creates an empty MockFileSystem
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{files: make(map[string][]byte)}
}

// Stat implements FileSystem
func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	if m.StatError != nil {
		return nil, m.StatError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return mockFileInfo{name: filepath.Base(name), size: int64(len(content))}, nil
}

// ReadFile implements FileSystem
func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileError != nil {
		return nil, m.ReadFileError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), content...), nil
}

// WriteFile implements FileSystem
func (m *MockFileSystem) WriteFile(name string, data []byte, _ fs.FileMode) error {
	if m.WriteFileError != nil {
		return m.WriteFileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	m.Writes++
	return nil
}

// Rename implements FileSystem
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if m.RenameError != nil {
		return m.RenameError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[oldpath]
	if !ok {
		return os.ErrNotExist
	}
	m.files[newpath] = content
	delete(m.files, oldpath)
	return nil
}

// Remove implements FileSystem
func (m *MockFileSystem) Remove(name string) error {
	if m.RemoveError != nil {
		return m.RemoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

// SetFile seeds a file
func (m *MockFileSystem) SetFile(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), content...)
}

// FileContent returns a file's content
func (m *MockFileSystem) FileContent(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	return append([]byte(nil), content...), ok
}

// Paths lists the files present, sorted
func (m *MockFileSystem) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MockFileLock is a FileLock that records its use
type MockFileLock struct {
	mu          sync.Mutex
	locked      bool
	lockError   error
	unlockError error

	LockAttempts   int
	UnlockAttempts int
}

// TryLockContext implements FileLock. A lock already held reports false.
func (l *MockFileLock) TryLockContext(context.Context, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LockAttempts++
	if l.lockError != nil {
		return false, l.lockError
	}
	if l.locked {
		return false, nil
	}
	l.locked = true
	return true, nil
}

// Unlock implements FileLock
func (l *MockFileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.UnlockAttempts++
	if l.unlockError != nil {
		return l.unlockError
	}
	l.locked = false
	return nil
}

// IsLocked reports whether the lock is held
func (l *MockFileLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// SetLockError makes later lock attempts fail with err
func (l *MockFileLock) SetLockError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockError = err
}

// SetLocked simulates another process holding the lock
func (l *MockFileLock) SetLocked(locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = locked
}

// MockFileLockFactory hands out one MockFileLock per path
type MockFileLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MockFileLock

	DefaultLockError error
}

// NewMockFileLockFactory creates an empty factory
func NewMockFileLockFactory() *MockFileLockFactory {
	return &MockFileLockFactory{locks: make(map[string]*MockFileLock)}
}

// New implements FileLockFactory
func (f *MockFileLockFactory) New(path string) FileLock {
	return f.lock(path)
}

// Lock returns the mock lock for path, creating it if needed
func (f *MockFileLockFactory) Lock(path string) *MockFileLock {
	return f.lock(path)
}

func (f *MockFileLockFactory) lock(path string) *MockFileLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.locks[path]; ok {
		return l
	}
	l := &MockFileLock{lockError: f.DefaultLockError}
	f.locks[path] = l
	return l
}
