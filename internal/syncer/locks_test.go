package syncer

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	k := newKeyedLocks()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("user-1/recovery")
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
		t.Errorf("same key must serialize, saw %d concurrent holders", maxActive)
	}
}

func TestKeyedLocks_DistinctKeysDoNotBlock(t *testing.T) {
	k := newKeyedLocks()

	unlockA := k.Lock("user-1/recovery")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("user-1/sleep")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys must not block each other")
	}
}

func TestKeyedLocks_EntriesReleased(t *testing.T) {
	k := newKeyedLocks()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("ephemeral")
			unlock()
		}()
	}
	wg.Wait()

	k.mu.Lock()
	defer k.mu.Unlock()
	if n := len(k.locks); n != 0 {
		t.Errorf("released keys must be removed from the map, %d remain", n)
	}
}
