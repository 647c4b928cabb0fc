package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/admission/ratelimit"
)

func allowAll(string, float64) ratelimit.Result {
	return ratelimit.Result{Allowed: true, Remaining: 1}
}

func denyAll(string, float64) ratelimit.Result {
	return ratelimit.Result{Allowed: false, RetryAfter: time.Second}
}

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()

	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// ============================================================================
// Construction and capacity
// ============================================================================

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Config{MaxQueueSize: 0, QueueTimeout: time.Second}); !errors.Is(err, ErrInvalidQueueSize) {
		t.Errorf("expected ErrInvalidQueueSize, got %v", err)
	}
	if _, err := NewManager(Config{MaxQueueSize: 1, QueueTimeout: 0}); !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("expected ErrInvalidTimeout, got %v", err)
	}

	m, err := NewManager(Config{MaxQueueSize: 1, QueueTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.config.SweepInterval != DefaultSweepInterval {
		t.Errorf("sweep interval = %v, want default %v", m.config.SweepInterval, DefaultSweepInterval)
	}
}

func TestEnqueue_PerKeyQueueFull(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 1, QueueTimeout: 5 * time.Second})

	// First request waits (no sweep running, nothing admits it).
	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), "key", 1, nil)
		firstDone <- err
	}()
	waitForDepth(t, m, "key", 1)

	// Second request for the same key is rejected synchronously.
	var metricsCalls int32
	_, err := m.Enqueue(context.Background(), "key", 1, func(allowed bool) {
		if allowed {
			t.Error("metrics callback reported allowed on a denial path")
		}
		atomic.AddInt32(&metricsCalls, 1)
	})

	var full *FullError
	if !errors.As(err, &full) {
		t.Fatalf("expected *FullError, got %v", err)
	}
	if full.Key != "key" || full.Limit != 1 || full.Scope != ScopeQueue {
		t.Errorf("FullError = %+v, want key/1/queue", full)
	}
	if atomic.LoadInt32(&metricsCalls) != 1 {
		t.Errorf("metrics calls = %d, want 1", metricsCalls)
	}

	// The first request is still pending.
	select {
	case err := <-firstDone:
		t.Fatalf("first request settled unexpectedly: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if m.Depth("key") != 1 {
		t.Errorf("depth = %d, want 1", m.Depth("key"))
	}
}

func TestEnqueue_UniqueKeyCeiling(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 10, QueueTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < MaxUniqueKeys; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Enqueue(context.Background(), fmt.Sprintf("key-%d", i), 1, nil)
		}(i)
	}
	waitForTotal(t, m, MaxUniqueKeys)

	// Every per-key queue has spare room, but a new key must still be
	// rejected.
	_, err := m.Enqueue(context.Background(), "one-key-too-many", 1, nil)
	var full *FullError
	if !errors.As(err, &full) {
		t.Fatalf("expected *FullError, got %v", err)
	}
	if full.Scope != ScopeKeys || full.Limit != MaxUniqueKeys {
		t.Errorf("FullError = %+v, want scope=keys limit=%d", full, MaxUniqueKeys)
	}

	// An existing key still has room.
	done := make(chan struct{})
	go func() {
		m.Enqueue(context.Background(), "key-0", 1, nil)
		close(done)
	}()
	waitForDepth(t, m, "key-0", 2)

	m.ClearAll()
	wg.Wait()
	<-done
}

// ============================================================================
// Admission sweep
// ============================================================================

func TestSweep_AdmitsQueuedRequest(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 5, QueueTimeout: 5 * time.Second, SweepInterval: 10 * time.Millisecond})

	var successKeys []string
	var mu sync.Mutex
	m.Start(allowAll, func(key string, allowed bool) {
		mu.Lock()
		successKeys = append(successKeys, key)
		mu.Unlock()
	})

	start := time.Now()
	res, err := m.Enqueue(context.Background(), "key", 1, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !res.Allowed || !res.Queued {
		t.Errorf("result = %+v, want allowed and queued", res)
	}
	if res.QueueWait <= 0 || res.QueueWait > time.Since(start)+time.Millisecond {
		t.Errorf("queue wait %v outside plausible range", res.QueueWait)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(successKeys) != 1 || successKeys[0] != "key" {
		t.Errorf("success callbacks = %v, want [key]", successKeys)
	}
	if m.Depth("key") != 0 {
		t.Errorf("depth after admission = %d, want 0", m.Depth("key"))
	}
}

func TestSweep_FIFOWithinKey(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 10, QueueTimeout: 10 * time.Second, SweepInterval: 5 * time.Millisecond})
	m.Start(allowAll, nil)

	var mu sync.Mutex
	var order []string

	enqueue := func(label string) chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := m.Enqueue(context.Background(), "key", 1, nil); err != nil {
				t.Errorf("request %s failed: %v", label, err)
				return
			}
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
		}()
		return done
	}

	firstDone := enqueue("A")
	waitForDepth(t, m, "key", 1)
	secondDone := enqueue("B")

	<-firstDone
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("completion order = %v, want [A B]", order)
	}
}

func TestSweep_HeadOfLineBlocking(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 10, QueueTimeout: 200 * time.Millisecond, SweepInterval: 10 * time.Millisecond})

	// Only unit costs can ever be paid; a cost-5 head is unsatisfiable.
	m.Start(func(key string, cost float64) ratelimit.Result {
		return ratelimit.Result{Allowed: cost <= 1}
	}, nil)

	headDone := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), "key", 5, nil)
		headDone <- err
	}()
	waitForDepth(t, m, "key", 1)

	cheapDone := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), "key", 1, nil)
		cheapDone <- err
	}()

	// The cheap request must not be admitted while the expensive head
	// is still waiting.
	select {
	case err := <-cheapDone:
		t.Fatalf("cheap request jumped the queue: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// Once the head times out, the cheap request becomes the head and
	// gets through.
	var timeout *TimeoutError
	if err := <-headDone; !errors.As(err, &timeout) {
		t.Fatalf("head: expected *TimeoutError, got %v", err)
	}
	if err := <-cheapDone; err != nil {
		t.Fatalf("cheap request failed after head expired: %v", err)
	}
}

// ============================================================================
// Timeouts, clears, shutdown
// ============================================================================

func TestEnqueue_Timeout(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 5, QueueTimeout: 50 * time.Millisecond})
	m.Start(denyAll, nil)

	var metricsCalls int32
	start := time.Now()
	_, err := m.Enqueue(context.Background(), "key", 1, func(bool) {
		atomic.AddInt32(&metricsCalls, 1)
	})
	elapsed := time.Since(start)

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if timeout.Key != "key" || timeout.Timeout != 50*time.Millisecond {
		t.Errorf("TimeoutError = %+v", timeout)
	}
	if elapsed < 45*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Errorf("settled after %v, want within [50ms, 150ms]", elapsed)
	}
	if atomic.LoadInt32(&metricsCalls) != 1 {
		t.Errorf("metrics calls = %d, want 1", metricsCalls)
	}
	if m.Depth("key") != 0 {
		t.Errorf("depth after timeout = %d, want 0", m.Depth("key"))
	}
}

func TestClearAll_RejectsEverything(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 5, QueueTimeout: time.Minute})

	errCh := make(chan error, 2)
	for _, key := range []string{"alpha", "beta"} {
		go func(key string) {
			_, err := m.Enqueue(context.Background(), key, 1, nil)
			errCh <- err
		}(key)
	}
	waitForTotal(t, m, 2)

	m.ClearAll()

	for i := 0; i < 2; i++ {
		var timeout *TimeoutError
		err := <-errCh
		if !errors.As(err, &timeout) {
			t.Fatalf("expected *TimeoutError, got %v", err)
		}
		if timeout.Timeout != 0 {
			t.Errorf("cleared request should carry a zero-duration timeout, got %v", timeout.Timeout)
		}
	}

	status := m.StatusSnapshot()
	if status.TotalQueued != 0 || len(status.Queues) != 0 {
		t.Errorf("status after clear = %+v, want empty", status)
	}
}

func TestClear_SingleKeyOnly(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 5, QueueTimeout: time.Minute})

	alphaDone := make(chan error, 1)
	betaDone := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), "alpha", 1, nil)
		alphaDone <- err
	}()
	go func() {
		_, err := m.Enqueue(context.Background(), "beta", 1, nil)
		betaDone <- err
	}()
	waitForTotal(t, m, 2)

	m.Clear("alpha")

	var timeout *TimeoutError
	if err := <-alphaDone; !errors.As(err, &timeout) {
		t.Fatalf("alpha: expected *TimeoutError, got %v", err)
	}
	select {
	case err := <-betaDone:
		t.Fatalf("beta settled unexpectedly: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if m.Depth("beta") != 1 {
		t.Errorf("beta depth = %d, want 1", m.Depth("beta"))
	}
}

func TestClose_Idempotent(t *testing.T) {
	m, err := NewManager(Config{MaxQueueSize: 5, QueueTimeout: time.Minute, SweepInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Start(denyAll, nil)

	pending := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), "key", 1, nil)
		pending <- err
	}()
	waitForDepth(t, m, "key", 1)

	m.Close()
	m.Close() // must be safe to call again

	var timeout *TimeoutError
	if err := <-pending; !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError after close, got %v", err)
	}

	// Enqueue after close is rejected outright.
	if _, err := m.Enqueue(context.Background(), "key", 1, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEnqueue_ContextCancellation(t *testing.T) {
	m := newTestManager(t, Config{MaxQueueSize: 5, QueueTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(ctx, "key", 1, nil)
		done <- err
	}()
	waitForDepth(t, m, "key", 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.Depth("key") != 0 {
		t.Errorf("depth after cancellation = %d, want 0", m.Depth("key"))
	}
}

// ============================================================================
// Helpers
// ============================================================================

func waitForDepth(t *testing.T, m *Manager, key string, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Depth(key) == depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("depth for %q never reached %d (now %d)", key, depth, m.Depth(key))
}

func waitForTotal(t *testing.T, m *Manager, total int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.StatusSnapshot().TotalQueued == total {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("total queued never reached %d (now %d)", total, m.StatusSnapshot().TotalQueued)
}
