package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// TokenBucket implements per-key token bucket rate limiting.
//
// Each key owns an independent bucket of floating point tokens. Buckets are
// created lazily on first reference, start full, and refill at a constant
// rate up to MaxTokens. The refill-then-subtract sequence is serialized under
// a single mutex; contention is expected to be low because decisions are pure
// arithmetic with no I/O and no timers.
type TokenBucket struct {
	config Config

	mu      sync.Mutex
	buckets map[string]*bucketState

	// nowFunc is the clock source; replaceable in tests.
	nowFunc func() time.Time

	logger *slog.Logger
}

// bucketState is the per-key budget. Mutated only by TryConsume while the
// TokenBucket mutex is held.
type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a per-key token bucket with the given configuration.
//
// Example:
//
//	// 5 request burst, 1 request/second sustained, availability-first
//	tb, err := NewTokenBucket(Config{
//	    MaxTokens:  5,
//	    RefillRate: 1,
//	    FailMode:   FailOpen,
//	})
func NewTokenBucket(config Config) (*TokenBucket, error) {
	if config.MaxTokens <= 0 || math.IsNaN(config.MaxTokens) || math.IsInf(config.MaxTokens, 0) {
		return nil, ErrInvalidCapacity
	}
	if config.RefillRate <= 0 || math.IsNaN(config.RefillRate) || math.IsInf(config.RefillRate, 0) {
		return nil, ErrInvalidRefillRate
	}
	if config.FailMode != FailOpen && config.FailMode != FailClosed {
		return nil, ErrInvalidFailMode
	}

	return &TokenBucket{
		config:  config,
		buckets: make(map[string]*bucketState),
		nowFunc: time.Now,
		logger:  slog.Default().With("component", "admission.ratelimit"),
	}, nil
}

// TryConsume attempts to pay cost tokens for key right now.
//
// Denial is a normal outcome, reported through Result rather than an error:
// Result.RetryAfter estimates when the missing budget will have refilled.
// Inputs the bucket cannot decide on (empty key, non-positive or non-finite
// cost, a clock that ran backwards) are resolved by the configured FailMode.
func (tb *TokenBucket) TryConsume(key string, cost float64) Result {
	if key == "" {
		return tb.failResult("empty key")
	}
	if cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return tb.failResult("invalid cost")
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.nowFunc()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucketState{tokens: tb.config.MaxTokens, lastRefill: now}
		tb.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed < 0 {
		// The clock source moved backwards; the bucket cannot tell how
		// much budget has accrued.
		return tb.failResult("clock moved backwards")
	}
	tb.refillLocked(b, now, elapsed)

	if b.tokens >= cost {
		b.tokens -= cost
		if b.tokens < 0 {
			b.tokens = 0
		}
		return Result{Allowed: true, Remaining: b.tokens}
	}

	return Result{
		Allowed:    false,
		Remaining:  b.tokens,
		RetryAfter: tb.retryAfter(cost - b.tokens),
	}
}

// Remaining returns the current budget for key after refill, without
// consuming anything. Keys that have never been seen report a full bucket.
func (tb *TokenBucket) Remaining(key string) float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, ok := tb.buckets[key]
	if !ok {
		return tb.config.MaxTokens
	}

	now := tb.nowFunc()
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		tb.refillLocked(b, now, elapsed)
	}
	return b.tokens
}

// Reset discards the state for key. The next reference starts a fresh, full
// bucket. Useful for tests and manual limit resets.
func (tb *TokenBucket) Reset(key string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.buckets, key)
}

// Len returns the number of keys with bucket state.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// PruneIdle removes bucket state for keys whose last refill is older than
// maxIdle, returning the number of keys removed.
//
// Pruning changes observable behavior for a pruned key: its next request
// starts a fresh, full bucket instead of whatever partial budget it had. The
// retention package only calls this when an operator explicitly enables it.
func (tb *TokenBucket) PruneIdle(maxIdle time.Duration) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.nowFunc()
	pruned := 0
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) >= maxIdle {
			delete(tb.buckets, key)
			pruned++
		}
	}
	return pruned
}

// refillLocked tops up b based on elapsed time, clamping to MaxTokens and,
// when Window is set, bounding the refill a long-idle key can accrue.
// Caller must hold the mutex and guarantee elapsed >= 0.
func (tb *TokenBucket) refillLocked(b *bucketState, now time.Time, elapsed time.Duration) {
	if tb.config.Window > 0 && elapsed > tb.config.Window {
		elapsed = tb.config.Window
	}

	b.tokens += elapsed.Seconds() * tb.config.RefillRate
	if b.tokens > tb.config.MaxTokens {
		b.tokens = tb.config.MaxTokens
	}
	b.lastRefill = now
}

// retryAfter estimates how long until missing tokens will have refilled,
// rounded up to the next millisecond.
func (tb *TokenBucket) retryAfter(missing float64) time.Duration {
	ms := math.Ceil(missing / tb.config.RefillRate * 1000)
	return time.Duration(ms) * time.Millisecond
}

// failResult resolves an undecidable request according to the fail mode.
func (tb *TokenBucket) failResult(reason string) Result {
	if tb.config.FailMode == FailClosed {
		tb.logger.Warn("admission decision failed, denying (fail-closed)", "reason", reason)
		return Result{Allowed: false, RetryAfter: tb.config.Window}
	}
	tb.logger.Warn("admission decision failed, allowing (fail-open)", "reason", reason)
	return Result{Allowed: true}
}
