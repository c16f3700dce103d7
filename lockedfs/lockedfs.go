// Package lockedfs provides file operations guarded by OS-level exclusive
// locks, so that independent processes sharing a state file on the same
// machine serialize their read-modify-write cycles.
package lockedfs

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Update opens path (creating it if missing), acquires an exclusive lock,
// reads the entire content, passes it to mutate and writes the returned bytes
// back, truncating the file. The write is flushed to stable storage before the
// lock is released. If mutate returns nil bytes the file is left untouched.
func Update(path string, mutate func(data []byte) ([]byte, error)) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	out, err := mutate(data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", path, err)
	}
	if _, err := f.WriteAt(out, 0); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

// Read runs fn on the file content under the same exclusive lock as Update.
// The exclusive (not shared) lock is deliberate: readers must not observe a
// writer's torn intermediate state, and lock fairness between processes is
// simpler to reason about with a single lock mode.
func Read(path string, fn func(data []byte) error) error {
	return Update(path, func(data []byte) ([]byte, error) {
		return nil, fn(data)
	})
}

// Append acquires an exclusive lock on path (creating it if missing), appends
// record and fsyncs before returning, so a crash immediately afterwards does
// not lose the record.
func Append(path string, record []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if _, err := f.Write(record); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}
