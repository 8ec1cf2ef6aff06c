package keylock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ringi/pkg/utils/keylock"
)

func TestLocker(t *testing.T) {
	t.Run("serializes callers of the same key", func(t *testing.T) {
		l := keylock.New()
		var active, maxActive int32
		var wg sync.WaitGroup

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := l.Lock("proj-1")
				defer unlock()

				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			}()
		}
		wg.Wait()

		gt.Value(t, atomic.LoadInt32(&maxActive)).Equal(int32(1))
		gt.Value(t, l.Size()).Equal(0)
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		l := keylock.New()
		unlockA := l.Lock("a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlock := l.Lock("b")
			unlock()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on another key blocked")
		}
		gt.Value(t, l.Size()).Equal(1)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		l := keylock.New()
		unlock := l.Lock("a")
		unlock()
		unlock()
		gt.Value(t, l.Size()).Equal(0)

		// the key can be taken again
		l.Lock("a")()
	})
}
