package ledger

import (
	"sync"
	"testing"
	"time"
)

func TestLockRegistryIsolatesAccounts(t *testing.T) {
	r := newLockRegistry()
	release := r.acquire("sub-1")

	done := make(chan struct{})
	go func() {
		r.acquire("sub-2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sub-2 blocked behind sub-1")
	}

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock := r.acquire("sub-1")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		unlock()
	}()
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 {
		t.Errorf("order = %v, want the holder first", order)
	}
	if n := r.size(); n != 2 {
		t.Errorf("size() = %d, want 2", n)
	}
	r.forget("sub-2")
	if n := r.size(); n != 1 {
		t.Errorf("size() after forget = %d, want 1", n)
	}
}
