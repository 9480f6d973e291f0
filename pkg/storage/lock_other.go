//go:build !unix

package storage

import "os"

// Advisory locking is only implemented on unix; elsewhere a single writer
// is the caller's responsibility.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
