package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLock_MutualExclusionPerKey(t *testing.T) {
	km := New()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := km.Lock("www.example.com")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}

	wg.Wait()

	if maxActive != 1 {
		t.Errorf("Expected at most 1 holder per key, observed %d", maxActive)
	}
}

func TestLock_IndependentKeys(t *testing.T) {
	km := New()

	unlockA := km.Lock("a.example.com")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b.example.com")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Lock on a different key should not block")
	}
}

func TestLock_EvictsIdleKeys(t *testing.T) {
	km := New()

	unlock := km.Lock("www.example.com")
	unlock()

	km.mu.Lock()
	n := len(km.locks)
	km.mu.Unlock()

	if n != 0 {
		t.Errorf("Expected idle keys to be evicted, %d remain", n)
	}
}

func TestLock_Reentry(t *testing.T) {
	km := New()

	unlock := km.Lock("www.example.com")
	unlock()

	// The key must be lockable again after release.
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("www.example.com")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Key should be lockable again after unlock")
	}
}
