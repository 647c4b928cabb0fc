// Package ratelimit implements the per-key token bucket that backs admission
// decisions.
//
// # Overview
//
// A TokenBucket owns one bucket of state per rate-limit key (tenant, IP, API
// token, session). Each key accrues tokens over time up to a configured cap
// and each request spends tokens equal to its cost:
//
//	tb, _ := ratelimit.NewTokenBucket(ratelimit.Config{
//	    MaxTokens:  100,
//	    RefillRate: 10, // tokens per second
//	    FailMode:   ratelimit.FailOpen,
//	})
//	res := tb.TryConsume("tenant-42", 1)
//	if res.Allowed {
//	    // Request admitted, res.Remaining tokens left
//	} else {
//	    // Denied; res.RetryAfter estimates when the cost becomes payable
//	}
//
// # Algorithm
//
//  1. Compute elapsed time since the key's last refill (monotonic clock)
//  2. Add elapsed * RefillRate tokens, capped at MaxTokens
//  3. If enough tokens are available: subtract the cost and allow
//  4. Otherwise: deny and report how long until the cost becomes payable
//
// Bucket state is created lazily on first reference to a key and is never
// evicted by the bucket itself. Callers that need to bound bucket-map
// cardinality use the retention package, which prunes idle keys on an
// explicit schedule.
//
// # Failure Modes
//
// The bucket never returns an error for a normal denial - denial is a result,
// not an exception. When the bucket cannot make a normal decision (empty key,
// non-positive or non-finite cost, clock running backwards) the configured
// FailMode decides: FailOpen favors availability and admits, FailClosed
// favors safety and denies.
//
// # Thread Safety
//
// TokenBucket is safe for concurrent use. The refill-then-subtract sequence
// for a key is atomic with respect to all other callers.
package ratelimit
