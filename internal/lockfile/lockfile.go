// Package lockfile wraps platform advisory file locks.
package lockfile

import "errors"

// ErrLockBusy is returned when a non-blocking lock attempt finds the
// lock held by another process.
var ErrLockBusy = errors.New("lock is held by another process")
