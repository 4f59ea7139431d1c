package bot

import (
	"sync"
	"testing"
)

func TestUserLockSerializesOneUser(t *testing.T) {
	b := &Bot{locks: make(map[string]*userLock)}

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.lockUser("u1")
			defer b.unlockUser("u1")
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestUserLocksAreIndependentAcrossUsers(t *testing.T) {
	b := &Bot{locks: make(map[string]*userLock)}

	b.lockUser("u1")
	done := make(chan struct{})
	go func() {
		b.lockUser("u2")
		b.unlockUser("u2")
		close(done)
	}()
	<-done
	b.unlockUser("u1")
}

func TestUserLockEntryIsDroppedAfterRelease(t *testing.T) {
	b := &Bot{locks: make(map[string]*userLock)}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			b.lockUser(id)
			b.unlockUser(id)
		}(i)
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.locks) != 0 {
		t.Fatalf("lock map still holds %d entries after all releases", len(b.locks))
	}
}
