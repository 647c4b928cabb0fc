// Package admission decides, per rate-limit key, whether a request proceeds
// immediately, waits, or is rejected.
//
// # Overview
//
// The package composes two policies that are independently testable and
// consumed together:
//
//   - ratelimit.TokenBucket: the pure per-key decision ("can this cost be
//     paid right now, and if not, when might it be?")
//   - queue.Manager: a bounded, strict-FIFO waiting room with per-request
//     timeouts for callers that prefer waiting over failing fast
//
// Limiter is the primary entry point:
//
//	limiter, err := admission.NewLimiter(admission.Config{
//	    Bucket: ratelimit.Config{
//	        MaxTokens:  100,
//	        RefillRate: 10,
//	        FailMode:   ratelimit.FailOpen,
//	    },
//	    Queue: queue.Config{
//	        MaxQueueSize: 50,
//	        QueueTimeout: 30 * time.Second,
//	    },
//	})
//	defer limiter.Close()
//
//	// Fail-fast decision:
//	res := limiter.TryConsume("tenant-42", 1)
//
//	// Consume-or-wait:
//	res, err := limiter.Acquire(ctx, "tenant-42", 1)
//
// Acquire first asks the bucket directly; only on denial does the request
// enter the key's queue, where a periodic sweep retries it until admission,
// timeout, or cancellation. Both queue error kinds (queue.FullError,
// queue.TimeoutError) are expected, recoverable outcomes that callers map to
// backpressure responses such as HTTP 429.
//
// # State
//
// All state is in-memory and single-process. Nothing is persisted across
// restarts and no cross-process coordination is attempted.
package admission
