// Package processlock implements the per-show OS-level lock file that
// prevents two recorder processes from recording the same show
// concurrently, per spec.md §4.4/§6 ("a file-system lock file per
// session prevents two processes from recording the same show").
// Grounded on original_source/src/record.rs's use of fs2's
// try_lock_exclusive against a `<name>.lock` sibling file; Go has no
// third-party flock library in the example pack, so this uses the
// stdlib syscall.Flock directly (see DESIGN.md).
package processlock

import (
	"fmt"
	"os"
	"syscall"
)

// Lock holds an open file descriptor with an advisory exclusive flock
// applied. Call Release to close the file and drop the lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates (or opens) path and takes a non-blocking exclusive
// flock on it, returning an error if another process already holds it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("processlock: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("processlock: %s is already locked by another process: %w", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the flock and closes the underlying file. The lock file
// itself is left on disk; only the flock matters for mutual exclusion.
func (l *Lock) Release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("processlock: unlock %s: %w", l.path, err)
	}
	return l.file.Close()
}
