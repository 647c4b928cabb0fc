package queue

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/callisto/pkg/admission/ratelimit"
)

// MaxUniqueKeys is the global ceiling on distinct keys holding any queued
// request, independent of per-key queue depth. It bounds memory when key
// cardinality is attacker-controlled.
const MaxUniqueKeys = 1000

// DefaultSweepInterval is the period of the admission sweep when the
// configuration leaves SweepInterval zero.
const DefaultSweepInterval = 100 * time.Millisecond

// Config contains configuration for a queue Manager.
type Config struct {
	// MaxQueueSize is the maximum number of waiting requests per key.
	MaxQueueSize int

	// QueueTimeout is how long a request may wait before it is rejected
	// with a TimeoutError.
	QueueTimeout time.Duration

	// SweepInterval is the period of the admission sweep.
	// Defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	// Debug enables per-request debug logging.
	Debug bool
}

// ConsumeFunc asks the token bucket whether cost can be paid for key right
// now. It is called from the sweep with the manager's lock held, so it must
// be a pure, non-blocking decision (no I/O).
type ConsumeFunc func(key string, cost float64) ratelimit.Result

// MetricsFunc is invoked exactly once on every denial path of a queued
// request (capacity rejection, timeout, clear, cancellation) with
// allowed=false, so observability is never skipped by an early return.
type MetricsFunc func(allowed bool)

// SuccessFunc is invoked by the sweep when a queued request is admitted.
type SuccessFunc func(key string, allowed bool)

// Status is a point-in-time snapshot of all queues.
type Status struct {
	// TotalQueued is the number of waiting requests across all keys.
	TotalQueued int

	// Queues maps each key with waiting requests to its queue depth.
	Queues map[string]int
}

// LimitScope identifies which capacity ceiling a FullError hit.
type LimitScope string

const (
	// ScopeQueue means the key's own queue was at MaxQueueSize.
	ScopeQueue LimitScope = "queue"

	// ScopeKeys means admitting a new key would exceed MaxUniqueKeys.
	ScopeKeys LimitScope = "keys"
)

// FullError reports a synchronous capacity rejection. The request was never
// enqueued. Recoverable: callers typically retry later or answer 429.
type FullError struct {
	// Key is the rate-limit key that was rejected.
	Key string

	// Limit is the ceiling that was hit.
	Limit int

	// Scope identifies whether the per-key or the global ceiling was hit.
	Scope LimitScope
}

// Error implements the error interface.
func (e *FullError) Error() string {
	if e.Scope == ScopeKeys {
		return fmt.Sprintf("admission queue full for %q: %d distinct keys already queued", e.Key, e.Limit)
	}
	return fmt.Sprintf("admission queue full for %q: %d requests already waiting", e.Key, e.Limit)
}

// TimeoutError reports that a queued request waited past its deadline, or
// was cancelled by an explicit clear (modeled as a zero-duration timeout).
// Recoverable: callers typically retry later or answer 429.
type TimeoutError struct {
	// Key is the rate-limit key the request waited on.
	Key string

	// Timeout is the deadline that expired. Zero means the request was
	// cleared rather than timed out.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Timeout == 0 {
		return fmt.Sprintf("queued request for %q cleared", e.Key)
	}
	return fmt.Sprintf("queued request for %q timed out after %s", e.Key, e.Timeout)
}

// Configuration and lifecycle errors.
var (
	// ErrInvalidQueueSize is returned when MaxQueueSize is not positive.
	ErrInvalidQueueSize = errors.New("max queue size must be positive")

	// ErrInvalidTimeout is returned when QueueTimeout is not positive.
	ErrInvalidTimeout = errors.New("queue timeout must be positive")

	// ErrClosed is returned by Enqueue after the manager has been closed.
	ErrClosed = errors.New("queue manager closed")
)
