package admission

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/callisto/pkg/admission/queue"
	"mercator-hq/callisto/pkg/admission/ratelimit"
)

// Config contains configuration for a Limiter.
type Config struct {
	// Bucket configures the per-key token bucket.
	Bucket ratelimit.Config

	// Queue configures the waiting queue for denied requests.
	Queue queue.Config
}

// Limiter composes the token bucket and the queue manager into a single
// admission-control surface. The queue owns no bucket state: it re-asks the
// bucket's TryConsume on behalf of waiting requests.
type Limiter struct {
	bucket  *ratelimit.TokenBucket
	queue   *queue.Manager
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures optional Limiter collaborators.
type Option func(*Limiter)

// WithMetrics attaches a metrics recorder. Without it the limiter records
// nothing.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithLogger replaces the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter creates a limiter and starts its admission sweep.
// Callers own the returned limiter and must Close it.
func NewLimiter(config Config, opts ...Option) (*Limiter, error) {
	bucket, err := ratelimit.NewTokenBucket(config.Bucket)
	if err != nil {
		return nil, err
	}
	mgr, err := queue.NewManager(config.Queue)
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		bucket: bucket,
		queue:  mgr,
		logger: slog.Default().With("component", "admission"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.metrics.registerQueueDepth(func() float64 {
		return float64(l.queue.StatusSnapshot().TotalQueued)
	})
	l.queue.Start(l.bucket.TryConsume, l.onQueueAdmission)

	return l, nil
}

// TryConsume makes a fail-fast decision: pay cost for key now or report
// denial with a retry estimate. It never waits.
func (l *Limiter) TryConsume(key string, cost float64) ratelimit.Result {
	res := l.bucket.TryConsume(key, cost)
	l.metrics.RecordCheck(res.Allowed)
	return res
}

// Acquire pays cost for key, waiting in the key's queue when the bucket
// cannot pay immediately.
//
// The error is one of: *queue.FullError (synchronous capacity rejection),
// *queue.TimeoutError (waited past the deadline, or cleared), queue.ErrClosed,
// or ctx's error. All are expected, recoverable outcomes.
func (l *Limiter) Acquire(ctx context.Context, key string, cost float64) (ratelimit.Result, error) {
	res := l.bucket.TryConsume(key, cost)
	if res.Allowed {
		l.metrics.RecordCheck(true)
		return res, nil
	}

	res, err := l.queue.Enqueue(ctx, key, cost, l.metrics.RecordCheck)
	if err != nil {
		l.metrics.RecordQueueRejection(rejectionReason(err))
		return res, err
	}

	l.metrics.ObserveQueueWait(res.QueueWait)
	return res, nil
}

// Depth returns the number of requests waiting for key.
func (l *Limiter) Depth(key string) int {
	return l.queue.Depth(key)
}

// Status returns the total queued count and a per-key breakdown.
func (l *Limiter) Status() queue.Status {
	return l.queue.StatusSnapshot()
}

// Clear cancels every waiting request for key.
func (l *Limiter) Clear(key string) {
	l.queue.Clear(key)
}

// ClearAll cancels every waiting request for every key.
func (l *Limiter) ClearAll() {
	l.queue.ClearAll()
}

// Bucket exposes the underlying token bucket for collaborators that operate
// on bucket state directly, such as the retention pruner.
func (l *Limiter) Bucket() *ratelimit.TokenBucket {
	return l.bucket
}

// Close stops the sweep and drains every queue. Idempotent.
func (l *Limiter) Close() {
	l.queue.Close()
}

// onQueueAdmission records a successful queued admission.
func (l *Limiter) onQueueAdmission(key string, allowed bool) {
	l.metrics.RecordCheck(allowed)
}

// rejectionReason maps a queue error to a metrics label.
func rejectionReason(err error) string {
	var full *queue.FullError
	if errors.As(err, &full) {
		if full.Scope == queue.ScopeKeys {
			return "key_ceiling"
		}
		return "queue_full"
	}

	var timeout *queue.TimeoutError
	if errors.As(err, &timeout) {
		if timeout.Timeout == 0 {
			return "cleared"
		}
		return "timeout"
	}

	if errors.Is(err, queue.ErrClosed) {
		return "closed"
	}
	return "cancelled"
}
