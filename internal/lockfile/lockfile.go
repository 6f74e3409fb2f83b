// Package lockfile keeps two delivery workers from sharing one data
// directory. The lock is an flock on a file in that directory, so the kernel
// drops it when the process dies.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

const FileName = "worker.lock"

type Lock struct {
	file *os.File
	path string
}

// LockError reports a lock held by another process.
type LockError struct {
	Path   string
	Holder string
	Cause  error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another delivery worker holds %s", e.Path)
	if e.Holder != "" {
		msg += " (" + e.Holder + ")"
	}
	return msg
}

func (e *LockError) Unwrap() error { return e.Cause }

// Acquire takes an exclusive non-blocking lock on dir/worker.lock.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)

	// not truncated until locked; the holder's pid must survive a failed attempt
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder, _ := os.ReadFile(path)
		return nil, &LockError{Path: path, Holder: strings.TrimSpace(string(holder)), Cause: err}
	}

	if err := file.Truncate(0); err == nil {
		_, err = fmt.Fprintf(file, "pid=%d\n", os.Getpid())
		if err != nil {
			log.Warn().Err(err).Str("lock_path", path).Msg("could not record pid in lock file")
		}
	}

	log.Debug().Str("lock_path", path).Int("pid", os.Getpid()).Msg("worker lock acquired")
	return &Lock{file: file, path: path}, nil
}

// Release unlocks and removes the lock file. Calling it twice is harmless.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	l.file = nil
	return errors.Join(errs...)
}
