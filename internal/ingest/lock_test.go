package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unlockLock is a test helper that unlocks and logs any error
func unlockLock(t *testing.T, lock *FileLock) {
	t.Helper()
	if err := lock.Unlock(); err != nil {
		t.Logf("Warning: Unlock failed: %v", err)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ingest.lock")

	first := NewFileLock(lockPath)
	defer unlockLock(t, first)
	acquired, err := first.TryLock()
	if err != nil || !acquired {
		t.Fatalf("first TryLock = %v, %v", acquired, err)
	}
	if !first.IsLocked() {
		t.Error("Expected IsLocked to return true")
	}

	second := NewFileLock(lockPath)
	acquired, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock returned error: %v", err)
	}
	if acquired {
		t.Error("second TryLock should not acquire a held lock")
	}
	if second.IsLocked() {
		t.Error("second lock should not report locked")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	acquired, err = second.TryLock()
	if err != nil || !acquired {
		t.Errorf("TryLock after release = %v, %v", acquired, err)
	}
	unlockLock(t, second)
}

func TestFileLock_Wait_Timeout(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ingest.lock")
	holder := NewFileLock(lockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer unlockLock(t, holder)

	waiter := NewFileLock(lockPath)
	start := time.Now()
	err := waiter.Wait(context.Background(), 50*time.Millisecond)

	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Wait error = %v, want ErrLockTimeout", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Wait returned before the timeout")
	}
	if waiter.IsLocked() {
		t.Error("waiter should not hold the lock after a timeout")
	}
}

func TestFileLock_Wait_AcquiresAfterRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ingest.lock")
	holder := NewFileLock(lockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.Unlock()
	}()

	waiter := NewFileLock(lockPath)
	defer unlockLock(t, waiter)
	if err := waiter.Wait(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !waiter.IsLocked() {
		t.Error("waiter should hold the lock")
	}
}

func TestFileLock_Wait_ContextCanceled(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ingest.lock")
	holder := NewFileLock(lockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer unlockLock(t, holder)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := NewFileLock(lockPath).Wait(ctx, 5*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFileLock_Unlock_NoOp(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "ingest.lock"))

	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock on unlocked lock should be a no-op, got %v", err)
	}
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock failed: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("second Unlock should be a no-op, got %v", err)
	}
}

func TestFileLock_CreatesDirectories(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "a", "b", "ingest.lock")
	lock := NewFileLock(lockPath)
	defer unlockLock(t, lock)

	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
	if lock.Path() != lockPath {
		t.Errorf("Path() = %q, want %q", lock.Path(), lockPath)
	}
}
