package persist

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// FileSystem is the file access LocalStore needs. Tests swap in
// MockFileSystem.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// OSFileSystem implements FileSystem with the os package
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (OSFileSystem) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (OSFileSystem) Remove(name string) error              { return os.Remove(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// FileLock is a cross-process exclusive lock
type FileLock interface {
	// TryLockContext retries every retryInterval until the lock is taken or
	// ctx is done
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)
	Unlock() error
}

// FileLockFactory creates the lock guarding a path
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock
type FlockFactory struct{}

// New implements FileLockFactory
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
