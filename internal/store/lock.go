package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockMode tracks which mode (if any) the environment currently holds the
// lockfile-d flock in.
type lockMode int

const (
	lockNone lockMode = iota
	lockShared
	lockExclusive
)

// environmentLock wraps a real flock(2) on <dir>/lockfile-d (spec §3
// EnvironmentLock, §4.4 concurrency gate). Shared mode gates normal
// operation; exclusive mode gates recovery.
type environmentLock struct {
	f    *os.File
	mode lockMode
}

func openEnvironmentLock(dir string) (*environmentLock, error) {
	f, err := os.OpenFile(lockfilePath(dir), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lockfile-d: %w", err)
	}
	return &environmentLock{f: f}, nil
}

func (l *environmentLock) acquireShared() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("flock LOCK_SH: %w", err)
	}
	l.mode = lockShared
	return nil
}

func (l *environmentLock) acquireExclusive() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock LOCK_EX: %w", err)
	}
	l.mode = lockExclusive
	return nil
}

// downgrade releases an exclusive hold and reacquires shared, the step the
// recovery protocol performs once recovery completes successfully.
func (l *environmentLock) downgrade() error {
	return l.acquireShared()
}

func (l *environmentLock) release() error {
	if l.mode == lockNone {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.mode = lockNone
	return err
}

func (l *environmentLock) close() error {
	l.release() //nolint:errcheck // best-effort on close
	return l.f.Close()
}
