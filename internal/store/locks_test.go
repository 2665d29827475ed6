package store

import (
	"sync"
	"testing"
)

func TestWithLockSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.WithLock("u1", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("lost updates under lock: %d", counter)
	}
}

func TestWithLockIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	// A held lock on one key must not block another key.
	release := make(chan struct{})
	held := make(chan struct{})
	go km.WithLock("a", func() error {
		close(held)
		<-release
		return nil
	})
	<-held

	done := make(chan struct{})
	go func() {
		km.WithLock("b", func() error { return nil })
		close(done)
	}()
	<-done
	close(release)
}
