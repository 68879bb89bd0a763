package showmutex

import (
	"sync"
	"testing"
)

func TestLockUnlockSameShowSerializes(t *testing.T) {
	m := New()
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("show-a")
			defer m.Unlock("show-a")
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50 (a data race would likely produce a different value)", counter)
	}
}

func TestDistinctShowsGetDistinctMutexes(t *testing.T) {
	m := New()
	m.Lock("show-a")
	defer m.Unlock("show-a")

	done := make(chan struct{})
	go func() {
		m.Lock("show-b")
		m.Unlock("show-b")
		close(done)
	}()

	select {
	case <-done:
	default:
	}
	<-done
}
