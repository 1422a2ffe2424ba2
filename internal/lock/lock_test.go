package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestFileLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.lock")

	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		t.Fatalf("lock file does not contain a PID: %q", content)
	}
	if pid != os.Getpid() {
		t.Errorf("lock PID: got %d, want %d", pid, os.Getpid())
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed after Unlock")
	}
}

func TestFileLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.lock")

	first := NewFileLock(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer first.Unlock()

	second := NewFileLock(path)
	if err := second.TryLock(); err == nil {
		second.Unlock()
		t.Fatal("second TryLock should fail while lock is held")
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "warden.lock"))
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock without lock should be a no-op, got %v", err)
	}
}

func TestMutexMap_SerializesSameKey(t *testing.T) {
	m := NewMutexMap()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("queue")
			counter++
			m.Unlock("queue")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter: got %d, want 50", counter)
	}
}

func TestMutexMap_DistinctKeysIndependent(t *testing.T) {
	m := NewMutexMap()

	m.Lock("queue")
	done := make(chan struct{})
	go func() {
		m.Lock("run_state")
		m.Unlock("run_state")
		close(done)
	}()
	<-done // must not deadlock: different key, different mutex
	m.Unlock("queue")
}
