package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	g := New(3)
	var cur, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			cur.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 3 {
		t.Fatalf("peak=%d, want <= 3", got)
	}
	if got := g.InFlight(); got != 0 {
		t.Fatalf("InFlight=%d after all released, want 0", got)
	}
}

func TestGate_AcquireHonorsCancel(t *testing.T) {
	t.Parallel()

	g := New(1)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want DeadlineExceeded", err)
	}
	if got := g.InFlight(); got != 1 {
		t.Fatalf("InFlight=%d, want 1", got)
	}
}

func TestGate_FIFOAdmission(t *testing.T) {
	t.Parallel()

	g := New(1)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire(%d): %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		// Let waiter i enqueue before waiter i+1.
		time.Sleep(5 * time.Millisecond)
	}

	release()
	release() // second call is a no-op
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("admission order=%v, want 0..4", order)
		}
	}
}
