package locks

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Obtain(ctx, "penalty:a", time.Second)
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Obtain(waitCtx, "penalty:a", time.Second); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Obtain() error = %v, want ErrLocked", err)
	}

	// Other keys are independent.
	other, err := l.Obtain(ctx, "penalty:b", time.Second)
	if err != nil {
		t.Fatalf("Obtain(other) error = %v", err)
	}
	other()

	release()
	release() // second call is a no-op

	again, err := l.Obtain(ctx, "penalty:a", time.Second)
	if err != nil {
		t.Fatalf("Obtain after release error = %v", err)
	}
	again()
}

func TestLocalConcurrentHolders(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Obtain(context.Background(), "k", time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if n := l.held(); n != 0 {
		t.Errorf("keys left after all releases = %d, want 0", n)
	}
}

func TestLocalForgetsReleasedKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		release, err := l.Obtain(ctx, "penalty:"+time.Duration(i).String(), time.Second)
		if err != nil {
			t.Fatalf("Obtain() error = %v", err)
		}
		release()
	}
	if n := l.held(); n != 0 {
		t.Fatalf("keys after releases = %d, want 0", n)
	}

	release, err := l.Obtain(ctx, "penalty:a", time.Second)
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Obtain(waitCtx, "penalty:a", time.Second); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Obtain() error = %v, want ErrLocked", err)
	}
	if n := l.held(); n != 1 {
		t.Errorf("keys while held = %d, want 1", n)
	}
	release()
	if n := l.held(); n != 0 {
		t.Errorf("keys after timed-out waiter and release = %d, want 0", n)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}

	r, rdb := NewRedis(addr)
	defer rdb.Close()

	ctx := context.Background()
	release, err := r.Obtain(ctx, "test:locks", 5*time.Second)
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := r.Obtain(waitCtx, "test:locks", 5*time.Second); !errors.Is(err, ErrLocked) {
		t.Errorf("second Obtain() error = %v, want ErrLocked", err)
	}
	release()
}
