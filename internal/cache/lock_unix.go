//go:build unix

package cache

import (
	"os"

	"golang.org/x/sys/unix"
)

// exclusiveLock takes an advisory, whole-file exclusive flock on f, per
// spec §4.I / OQ-3. Store applies it to its own temp file. It blocks
// until the lock is available.
func exclusiveLock(f *os.File) (unlock func(), err error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { unix.Flock(fd, unix.LOCK_UN) }, nil
}

// sharedLock takes an advisory shared flock, letting concurrent Loads
// proceed together. Load applies it to the final file, which Store never
// locks, so it does not exclude a concurrent Store.
func sharedLock(f *os.File) (unlock func(), err error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_SH); err != nil {
		return nil, err
	}
	return func() { unix.Flock(fd, unix.LOCK_UN) }, nil
}
