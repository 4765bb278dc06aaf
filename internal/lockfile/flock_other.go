//go:build !unix

package lockfile

import "os"

// Advisory locking is best-effort on platforms without flock; locks
// always succeed so single-process use keeps working.

func FlockSharedNonBlock(_ *os.File) error { return nil }

func FlockExclusiveNonBlock(_ *os.File) error { return nil }

func FlockUnlock(_ *os.File) error { return nil }
