package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock(SourceKey(0))
	m.Unlock(SourceKey(0))

	// Should be able to lock again
	m.Lock(SourceKey(0))
	m.Unlock(SourceKey(0))
}

func TestMutexMap_DifferentSources(t *testing.T) {
	m := NewMutexMap()

	done := make(chan struct{})

	m.Lock(SourceKey(0))
	go func() {
		// source 1 must not be blocked by source 0
		m.Lock(SourceKey(1))
		m.Unlock(SourceKey(1))
		close(done)
	}()

	<-done
	m.Unlock(SourceKey(0))
}

func TestMutexMap_Concurrent(t *testing.T) {
	m := NewMutexMap()
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock(SourceKey(2))
			atomic.AddInt64(&counter, 1)
			m.Unlock(SourceKey(2))
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected counter=100, got %d", counter)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "controller.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()
}

func TestFileLock_DoubleLockRejected(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "controller.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err == nil {
		fl2.Unlock()
		t.Fatal("second TryLock should fail while the first is held")
	}
}

func TestFileLock_UnlockIdempotent(t *testing.T) {
	dir := t.TempDir()
	fl := NewFileLock(filepath.Join(dir, "controller.lock"))

	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("second Unlock should be a no-op, got: %v", err)
	}
}
