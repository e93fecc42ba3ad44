// Package runlock implements the marker-file lock that keeps reference index
// drains from overlapping across processes.
//
// The marker is a zero-byte file whose presence means "a drain is running".
// Acquire creates it exclusively while holding a flock guard on a sibling
// file, so two processes cannot both observe it absent and both create it.
// The marker is not tied to process lifetime: a crash leaves it behind and an
// operator clears it with "asyncref lock clear".
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

var (
	// ErrHeld is returned by Acquire when the marker already exists.
	ErrHeld = errors.New("reference index run lock already held")
	// ErrLockIO wraps every filesystem failure while handling the lock.
	ErrLockIO = errors.New("run lock i/o failure")
)

const guardSuffix = ".guard"

// Resolve picks the marker path. The primary path is used when its directory
// exists and is writable; otherwise the legacy path is used.
func Resolve(primary, legacy string) string {
	primary = strings.TrimSpace(primary)
	legacy = strings.TrimSpace(legacy)
	if legacy == "" || dirUsable(filepath.Dir(primary)) {
		return primary
	}
	return legacy
}

func dirUsable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(dir, unix.W_OK|unix.X_OK) == nil
}

// Status describes the marker on disk.
type Status struct {
	Path  string
	Held  bool
	Since time.Time
}

// Lock is a handle on one marker path.
type Lock struct {
	path  string
	guard *flock.Flock
}

// New returns a Lock for the marker at path.
func New(path string) *Lock {
	return &Lock{
		path:  path,
		guard: flock.New(path + guardSuffix),
	}
}

// Path returns the marker path.
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether the marker exists.
func (l *Lock) Held() (bool, error) {
	status, err := l.Stat()
	if err != nil {
		return false, err
	}
	return status.Held, nil
}

// Stat reports whether the marker exists and when it was created.
func (l *Lock) Stat() (Status, error) {
	status := Status{Path: l.path}
	info, err := os.Stat(l.path)
	switch {
	case err == nil:
		status.Held = true
		status.Since = info.ModTime()
		return status, nil
	case errors.Is(err, fs.ErrNotExist):
		return status, nil
	default:
		return status, fmt.Errorf("%w: stat %s: %w", ErrLockIO, l.path, err)
	}
}

// Acquire creates the marker. It returns ErrHeld if the marker already exists.
func (l *Lock) Acquire() error {
	if err := l.guard.Lock(); err != nil {
		return fmt.Errorf("%w: guard %s: %w", ErrLockIO, l.guard.Path(), err)
	}
	defer func() {
		_ = l.guard.Unlock()
	}()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrHeld
		}
		return fmt.Errorf("%w: create %s: %w", ErrLockIO, l.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrLockIO, l.path, err)
	}
	return nil
}

// Release removes the marker. A missing marker is not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrLockIO, l.path, err)
	}
	return nil
}
