package ratelimit

import (
	"errors"
	"time"
)

// FailMode selects the bucket's behavior when it cannot make a normal
// decision (for example, a malformed cost or a clock anomaly).
type FailMode string

const (
	// FailOpen favors availability: undecidable requests are admitted.
	FailOpen FailMode = "open"

	// FailClosed favors safety: undecidable requests are denied.
	FailClosed FailMode = "closed"
)

// Config contains configuration for a TokenBucket.
//
// All fields are required; NewTokenBucket rejects zero values rather than
// inventing defaults. Window is the only optional field.
type Config struct {
	// MaxTokens is the bucket capacity (maximum burst) per key.
	MaxTokens float64

	// RefillRate is the number of tokens added per second per key.
	RefillRate float64

	// Window bounds burst accounting: a key idle longer than Window only
	// accrues Window's worth of refill. Zero means no bound beyond
	// MaxTokens itself.
	Window time.Duration

	// FailMode selects fail-open or fail-closed behavior for internal
	// errors. Must be FailOpen or FailClosed.
	FailMode FailMode
}

// Result is the outcome of a single admission decision.
type Result struct {
	// Allowed indicates whether the cost was paid.
	Allowed bool

	// Remaining is the token budget left for the key after this decision.
	Remaining float64

	// RetryAfter estimates when enough budget will exist for the denied
	// cost. Zero when Allowed is true.
	RetryAfter time.Duration

	// Queued indicates the request waited in the admission queue before
	// being decided. Set by the queue layer, never by the bucket.
	Queued bool

	// QueueWait is how long the request waited in the queue. Zero unless
	// Queued is true.
	QueueWait time.Duration
}

// Configuration errors returned by NewTokenBucket.
var (
	// ErrInvalidCapacity is returned when MaxTokens is not positive.
	ErrInvalidCapacity = errors.New("max tokens must be positive")

	// ErrInvalidRefillRate is returned when RefillRate is not positive.
	ErrInvalidRefillRate = errors.New("refill rate must be positive")

	// ErrInvalidFailMode is returned when FailMode is not "open" or "closed".
	ErrInvalidFailMode = errors.New("fail mode must be open or closed")
)
