package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(ctx, "same-key")
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestLockContextCancellation(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}

	// Second acquisition on the held key must give up when the context does.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.LockContext(ctx, "key")
	if err == nil {
		t.Fatal("expected context error while lock is held")
	}

	unlock()

	// After release the key is acquirable again.
	unlock2, err := m.LockContext(context.Background(), "key")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	unlock2()
}
