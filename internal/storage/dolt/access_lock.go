package dolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cognidao/membank/internal/lockfile"
)

// AccessLock coordinates access to the embedded Dolt database with an
// advisory flock. Shared locks allow concurrent readers; exclusive locks
// keep the engine single-writer across processes.
type AccessLock struct {
	file *os.File
	path string
}

const (
	// accessLockFile sits next to the dolt data directory.
	accessLockFile = "membank-access.lock"

	lockPollInterval = 50 * time.Millisecond
)

// AcquireAccessLock acquires an advisory flock guarding doltDir. With
// exclusive, the lock is a writer lock; otherwise a reader lock. Polls
// until timeout expires, then fails with lockfile.ErrLockBusy.
func AcquireAccessLock(doltDir string, exclusive bool, timeout time.Duration) (*AccessLock, error) {
	parent := filepath.Dir(doltDir)
	lockPath := filepath.Join(parent, accessLockFile)

	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	// #nosec G304 -- controlled path derived from database configuration
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open access lock: %w", err)
	}

	lockFn := lockfile.FlockSharedNonBlock
	if exclusive {
		lockFn = lockfile.FlockExclusiveNonBlock
	}

	if err := lockFn(f); err == nil {
		return &AccessLock{file: f, path: lockPath}, nil
	} else if !errors.Is(err, lockfile.ErrLockBusy) {
		_ = f.Close()
		return nil, fmt.Errorf("access lock: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(lockPollInterval)

		if err := lockFn(f); err == nil {
			return &AccessLock{file: f, path: lockPath}, nil
		} else if !errors.Is(err, lockfile.ErrLockBusy) {
			_ = f.Close()
			return nil, fmt.Errorf("access lock: %w", err)
		}
	}

	_ = f.Close()
	kind := "shared"
	if exclusive {
		kind = "exclusive"
	}
	return nil, fmt.Errorf("dolt access lock timeout (%s, %v): another membank process is using the database: %w",
		kind, timeout, lockfile.ErrLockBusy)
}

// Release releases the advisory lock and closes the underlying file.
// Safe to call on a nil lock and safe to call more than once.
func (l *AccessLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = lockfile.FlockUnlock(l.file)
	_ = l.file.Close()
	l.file = nil
}
