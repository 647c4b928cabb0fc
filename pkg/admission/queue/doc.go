// Package queue provides a bounded, FIFO waiting room for requests denied by
// the token bucket.
//
// # Overview
//
// A Manager holds one ordered queue of waiting requests per rate-limit key.
// A periodic sweep re-asks the injected consume function on behalf of each
// queue's head until the head is admitted, times out, or is cleared:
//
//	mgr, _ := queue.NewManager(queue.Config{
//	    MaxQueueSize: 50,
//	    QueueTimeout: 30 * time.Second,
//	})
//	mgr.Start(bucket.TryConsume, onSuccess)
//	defer mgr.Close()
//
//	res, err := mgr.Enqueue(ctx, "tenant-42", 1, onMetrics)
//
// # Fairness
//
// Within one key, requests are serviced strictly in arrival order and only
// the head of the queue is ever attempted. A later, cheaper request never
// jumps ahead of an earlier request whose cost cannot yet be paid; a
// never-satisfiable head therefore starves the requests behind it until its
// timeout fires. That is deliberate: strict FIFO is a stronger and
// easier-to-reason-about guarantee than best-effort reordering. Across keys
// there is no ordering guarantee.
//
// # Backpressure
//
// Memory is bounded by two independent ceilings, both enforced synchronously
// at Enqueue time with a FullError: the per-key queue depth (MaxQueueSize)
// and the number of distinct keys with any waiting request (MaxUniqueKeys).
// The second ceiling defends against key-cardinality explosions, such as a
// key derived from unauthenticated client IPs.
//
// # Lifecycle
//
// Every queued request is settled exactly once, on the first of: admission by
// the sweep, timeout expiry, explicit Clear, or Close. All exit paths remove
// the request by identity and release its timer.
package queue
