package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/admission/ratelimit"
)

// Manager owns the per-key queues of waiting requests and the periodic sweep
// that retries them against the token bucket.
//
// The queue map and every request in it are mutated only while the manager's
// mutex is held: inside Enqueue, inside the sweep, inside timer expiry, and
// inside Clear/Close. No other component touches queue state.
type Manager struct {
	config Config

	mu       sync.Mutex
	queues   map[string][]*queuedRequest
	sweeping bool
	started  bool
	closed   bool

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	// nowFunc is the clock source; replaceable in tests.
	nowFunc func() time.Time

	logger *slog.Logger
}

// queuedRequest is one waiting request. Identity is a UUID, never a
// timestamp: timestamps collide under load and removal is always by id.
type queuedRequest struct {
	id        uuid.UUID
	key       string
	cost      float64
	queuedAt  time.Time
	timer     *time.Timer
	onMetrics MetricsFunc

	// settled flips exactly once, under the manager mutex. The admission
	// sweep, the timeout timer, context cancellation, and Clear all race
	// to settle the same request; whoever flips settled delivers the one
	// and only outcome.
	settled bool
	done    chan settlement
}

// settlement is the terminal outcome of a queued request.
type settlement struct {
	result ratelimit.Result
	err    error
}

// NewManager creates a queue manager with the given configuration.
//
// The manager is inert until Start is called: requests can be enqueued but
// nothing will admit them.
func NewManager(config Config) (*Manager, error) {
	if config.MaxQueueSize <= 0 {
		return nil, ErrInvalidQueueSize
	}
	if config.QueueTimeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}

	return &Manager{
		config:  config,
		queues:  make(map[string][]*queuedRequest),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		nowFunc: time.Now,
		logger:  slog.Default().With("component", "admission.queue"),
	}, nil
}

// Start launches the periodic admission sweep.
//
// tryConsume is asked on behalf of each queue's head; onSuccess fires for
// every admission. Start is a no-op if the sweep is already running or the
// manager is closed.
func (m *Manager) Start(tryConsume ConsumeFunc, onSuccess SuccessFunc) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run(tryConsume, onSuccess)
}

// run drives the sweep off a ticker until Close.
func (m *Manager) run(tryConsume ConsumeFunc, onSuccess SuccessFunc) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(tryConsume, onSuccess)
		}
	}
}

// Enqueue appends a waiting request for key and blocks until it is admitted,
// times out, is cleared, or ctx is cancelled.
//
// Capacity rejections are synchronous: a *FullError is returned without
// enqueueing when the key's queue is at MaxQueueSize, or when key is new and
// MaxUniqueKeys keys already have waiting requests. Waiting requests that
// expire settle with a *TimeoutError. onMetrics (may be nil) fires with
// allowed=false exactly once on every one of those denial paths before the
// error is returned.
func (m *Manager) Enqueue(ctx context.Context, key string, cost float64, onMetrics MetricsFunc) (ratelimit.Result, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return m.deny(onMetrics, ErrClosed)
	}

	q, exists := m.queues[key]
	if len(q) >= m.config.MaxQueueSize {
		m.mu.Unlock()
		return m.deny(onMetrics, &FullError{Key: key, Limit: m.config.MaxQueueSize, Scope: ScopeQueue})
	}
	if !exists && len(m.queues) >= MaxUniqueKeys {
		m.mu.Unlock()
		return m.deny(onMetrics, &FullError{Key: key, Limit: MaxUniqueKeys, Scope: ScopeKeys})
	}

	req := &queuedRequest{
		id:        uuid.New(),
		key:       key,
		cost:      cost,
		queuedAt:  m.nowFunc(),
		onMetrics: onMetrics,
		done:      make(chan settlement, 1),
	}
	m.queues[key] = append(q, req)
	req.timer = time.AfterFunc(m.config.QueueTimeout, func() {
		m.expire(req)
	})

	depth := len(m.queues[key])
	m.mu.Unlock()

	if m.config.Debug {
		m.logger.Debug("request queued",
			"key", key,
			"request_id", req.id,
			"cost", cost,
			"depth", depth,
		)
	}

	select {
	case s := <-req.done:
		return s.result, s.err

	case <-ctx.Done():
		if m.unsettle(req) {
			req.timer.Stop()
			return m.deny(onMetrics, ctx.Err())
		}
		// Lost the race: the request was settled while ctx fired.
		s := <-req.done
		return s.result, s.err
	}
}

// sweep makes one admission pass: for every key with waiting requests, the
// head (and only the head) is offered to tryConsume. An admitted head is
// removed by id and settled; a denied head stays put so nothing behind it
// can jump ahead. Empty queues are dropped from the map as they are found.
func (m *Manager) sweep(tryConsume ConsumeFunc, onSuccess SuccessFunc) {
	m.mu.Lock()
	if m.sweeping {
		// Two overlapping passes could double-consume tokens for the
		// same head.
		m.mu.Unlock()
		return
	}
	m.sweeping = true

	var admitted []*queuedRequest
	var results []ratelimit.Result

	for key, q := range m.queues {
		if len(q) == 0 {
			delete(m.queues, key)
			continue
		}

		head := q[0]
		res := tryConsume(key, head.cost)
		if !res.Allowed {
			continue
		}

		head.settled = true
		head.timer.Stop()
		m.removeLocked(head)

		res.Queued = true
		res.QueueWait = m.nowFunc().Sub(head.queuedAt)
		admitted = append(admitted, head)
		results = append(results, res)
	}

	m.sweeping = false
	m.mu.Unlock()

	// Callbacks and deliveries run outside the lock; each request was
	// already marked settled so no other path can touch it.
	for i, req := range admitted {
		if m.config.Debug {
			m.logger.Debug("request admitted",
				"key", req.key,
				"request_id", req.id,
				"queue_wait_ms", results[i].QueueWait.Milliseconds(),
			)
		}
		if onSuccess != nil {
			onSuccess(req.key, true)
		}
		req.done <- settlement{result: results[i]}
	}
}

// expire is the timeout path. Removal must tolerate a request that is
// already gone: the sweep or a clear may have settled it first.
func (m *Manager) expire(req *queuedRequest) {
	if !m.unsettle(req) {
		return
	}

	if m.config.Debug {
		m.logger.Debug("request timed out",
			"key", req.key,
			"request_id", req.id,
			"timeout_ms", m.config.QueueTimeout.Milliseconds(),
		)
	}
	if req.onMetrics != nil {
		req.onMetrics(false)
	}
	req.done <- settlement{err: &TimeoutError{Key: req.key, Timeout: m.config.QueueTimeout}}
}

// Depth returns the number of requests waiting for key.
func (m *Manager) Depth(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[key])
}

// StatusSnapshot returns the total queued count and a per-key breakdown.
func (m *Manager) StatusSnapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{Queues: make(map[string]int, len(m.queues))}
	for key, q := range m.queues {
		status.Queues[key] = len(q)
		status.TotalQueued += len(q)
	}
	return status
}

// Clear synchronously cancels every waiting request for key, settling each
// with a zero-duration TimeoutError, and drops the key's queue.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	detached := m.detachLocked(key)
	m.mu.Unlock()

	m.settleCleared(detached)
}

// ClearAll clears every key. Used for explicit flushes such as test teardown
// or a key ban sweep.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	var detached []*queuedRequest
	for key := range m.queues {
		detached = append(detached, m.detachLocked(key)...)
	}
	m.mu.Unlock()

	m.settleCleared(detached)
}

// Close stops the sweep and drains every queue. Idempotent: calling Close
// twice has the same effect as once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		m.mu.Unlock()

		if started {
			close(m.stopCh)
			<-m.doneCh
		}
		m.ClearAll()
		m.logger.Info("queue manager closed")
	})
}

// deny fires the metrics callback and returns the denial.
func (m *Manager) deny(onMetrics MetricsFunc, err error) (ratelimit.Result, error) {
	if onMetrics != nil {
		onMetrics(false)
	}
	return ratelimit.Result{}, err
}

// unsettle claims a request for settlement. It returns false if another
// path already settled it; on true, the caller owns delivering the outcome
// and the request has been removed from its queue.
func (m *Manager) unsettle(req *queuedRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.settled {
		return false
	}
	req.settled = true
	m.removeLocked(req)
	return true
}

// removeLocked removes req from its key's queue by id and drops the queue
// when it becomes empty. Caller must hold the mutex.
func (m *Manager) removeLocked(req *queuedRequest) {
	q := m.queues[req.key]
	for i, r := range q {
		if r.id == req.id {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(m.queues, req.key)
	} else {
		m.queues[req.key] = q
	}
}

// detachLocked claims every unsettled request for key and drops the queue.
// Caller must hold the mutex; settlement happens outside it.
func (m *Manager) detachLocked(key string) []*queuedRequest {
	q := m.queues[key]
	delete(m.queues, key)

	detached := make([]*queuedRequest, 0, len(q))
	for _, req := range q {
		if req.settled {
			continue
		}
		req.settled = true
		req.timer.Stop()
		detached = append(detached, req)
	}
	return detached
}

// settleCleared rejects detached requests with a zero-duration timeout, the
// cancellation form of TimeoutError.
func (m *Manager) settleCleared(detached []*queuedRequest) {
	for _, req := range detached {
		if req.onMetrics != nil {
			req.onMetrics(false)
		}
		req.done <- settlement{err: &TimeoutError{Key: req.key}}
	}
}
