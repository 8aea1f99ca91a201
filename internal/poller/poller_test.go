package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func waitFor(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for delivery")
		return ""
	}
}

func TestImmediateFetch(t *testing.T) {
	got := make(chan string, 1)
	unsubscribe := Subscribe(context.Background(), testLogger(), "orders", time.Hour,
		func(ctx context.Context) ([]string, error) {
			return []string{"a"}, nil
		},
		func(items []string) { got <- items[0] },
	)
	defer unsubscribe()

	if v := waitFor(t, got, time.Second); v != "a" {
		t.Errorf("Expected a, got %s", v)
	}
}

func TestRepeatedTicks(t *testing.T) {
	var calls int32
	got := make(chan string, 100)
	unsubscribe := Subscribe(context.Background(), testLogger(), "shops", 10*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			atomic.AddInt32(&calls, 1)
			return []string{"x"}, nil
		},
		func(items []string) { got <- items[0] },
	)
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		waitFor(t, got, time.Second)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("Expected at least 3 fetches, got %d", calls)
	}
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	got := make(chan string, 100)

	unsubscribe := Subscribe(context.Background(), testLogger(), "orders", 10*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-release
				return []string{"stale"}, nil
			}
			return []string{"fresh"}, nil
		},
		func(items []string) { got <- items[0] },
	)
	defer unsubscribe()

	if v := waitFor(t, got, time.Second); v != "fresh" {
		t.Fatalf("Expected fresh first, got %s", v)
	}
	close(release)

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case v := <-got:
			if v == "stale" {
				t.Fatal("Stale snapshot delivered after a newer one")
			}
		case <-deadline:
			return
		}
	}
}

func TestDeliverOrdering(t *testing.T) {
	var seen []int
	s := &subscription[int]{
		name:   "orders",
		logger: testLogger(),
		onData: func(items []int) { seen = append(seen, items[0]) },
	}

	s.deliver(2, []int{2})
	s.deliver(1, []int{1})
	s.deliver(3, []int{3})
	s.deliver(3, []int{3})

	if len(seen) != 2 || seen[0] != 2 || seen[1] != 3 {
		t.Errorf("Expected [2 3], got %v", seen)
	}
}

func TestUnsubscribeWaitsForPendingDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var delivered int32
	s := &subscription[int]{
		name:   "orders",
		logger: testLogger(),
		ctx:    ctx,
		cancel: cancel,
		onData: func(items []int) { atomic.AddInt32(&delivered, 1) },
	}

	// A deliver holding the mutex has passed its first stopped check.
	s.mutex.Lock()
	returned := make(chan struct{})
	go func() {
		s.stop()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("stop returned while a delivery was pending")
	case <-time.After(20 * time.Millisecond):
	}
	s.mutex.Unlock()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("stop never returned")
	}

	s.deliver(1, []int{1})
	if atomic.LoadInt32(&delivered) != 0 {
		t.Error("Expected no delivery after stop returned")
	}
}

func TestUnsubscribeWhileCallbackRunsElsewhere(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	unsubscribe := Subscribe(context.Background(), testLogger(), "orders", 5*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			return []string{"a"}, nil
		},
		func(items []string) {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(entered)
				<-release
			}
		},
	)

	<-entered
	unsubscribe()
	close(release)

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected no deliveries after unsubscribe, got %d", got)
	}
}

func TestUnsubscribeDiscardsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var delivered int32

	unsubscribe := Subscribe(context.Background(), testLogger(), "orders", time.Hour,
		func(ctx context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"late"}, nil
		},
		func(items []string) { atomic.AddInt32(&delivered, 1) },
	)

	<-started
	unsubscribe()
	close(release)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&delivered) != 0 {
		t.Error("In-flight result delivered after unsubscribe")
	}
}

func TestUnsubscribeStopsTicks(t *testing.T) {
	var calls int32
	got := make(chan string, 100)
	unsubscribe := Subscribe(context.Background(), testLogger(), "menus", 5*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			atomic.AddInt32(&calls, 1)
			return []string{"m"}, nil
		},
		func(items []string) { got <- items[0] },
	)

	waitFor(t, got, time.Second)
	unsubscribe()
	unsubscribe()

	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != after {
		t.Errorf("Expected no fetches after unsubscribe, went from %d to %d", after, calls)
	}
}

func TestFailedTickIsSkipped(t *testing.T) {
	var calls int32
	got := make(chan string, 100)
	unsubscribe := Subscribe(context.Background(), testLogger(), "orders", 10*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.New("status 500")
			}
			return []string{"ok"}, nil
		},
		func(items []string) { got <- items[0] },
	)
	defer unsubscribe()

	if v := waitFor(t, got, time.Second); v != "ok" {
		t.Errorf("Expected ok, got %s", v)
	}
}

func TestUnsubscribeFromCallback(t *testing.T) {
	var calls int32
	var unsubscribe func()
	var mu sync.Mutex
	done := make(chan struct{})

	mu.Lock()
	unsubscribe = Subscribe(context.Background(), testLogger(), "orders", 5*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			return []string{"a"}, nil
		},
		func(items []string) {
			if atomic.AddInt32(&calls, 1) == 1 {
				mu.Lock()
				unsubscribe()
				mu.Unlock()
				close(done)
			}
		},
	)
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe from callback did not return")
	}

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single delivery, got %d", got)
	}
}

func TestParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	got := make(chan string, 100)

	unsubscribe := Subscribe(ctx, testLogger(), "orders", 5*time.Millisecond,
		func(ctx context.Context) ([]string, error) {
			atomic.AddInt32(&calls, 1)
			return []string{"a"}, nil
		},
		func(items []string) { got <- items[0] },
	)
	defer unsubscribe()

	waitFor(t, got, time.Second)
	cancel()

	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != after {
		t.Error("Expected ticks to stop when the parent context is cancelled")
	}
}
