package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout indicates the lock was not released within the wait period.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const (
	minLockPoll = 10 * time.Millisecond
	maxLockPoll = 500 * time.Millisecond
)

// FileLock is an exclusive flock(2) lock on a file. It coordinates processes sharing
// a download directory and is released by the kernel if the holder dies.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock at path. The file and its parent directories are
// created on first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to take the lock without blocking.
// It reports false, without error, when another holder has it.
func (l *FileLock) TryLock() (bool, error) {
	if err := l.open(); err != nil {
		return false, err
	}

	ok, err := l.flock()
	if err != nil || !ok {
		l.release()
	}
	return ok, err
}

// Wait blocks until the lock is taken, timeout elapses or ctx is done.
func (l *FileLock) Wait(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	poll := minLockPoll
	for {
		ok, err := l.flock()
		if err != nil {
			l.release()
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			l.release()
			return ErrLockTimeout
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.release()
			return ctx.Err()
		case <-timer.C:
			poll = min(poll*2, maxLockPoll)
		}
	}
}

// Unlock releases the lock. Unlocking an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// IsLocked returns true if the lock is currently held by this instance.
func (l *FileLock) IsLocked() bool {
	return l.file != nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// flock makes one non-blocking attempt. Contention is reported as false.
func (l *FileLock) flock() (bool, error) {
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

func (l *FileLock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}

func (l *FileLock) release() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
