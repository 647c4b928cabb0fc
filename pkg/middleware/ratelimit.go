package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"mercator-hq/callisto/pkg/admission"
	"mercator-hq/callisto/pkg/admission/queue"
	"mercator-hq/callisto/pkg/admission/ratelimit"
)

// KeyFunc extracts the rate-limit key from a request. An empty key skips
// admission control for that request.
type KeyFunc func(r *http.Request) string

// CostFunc computes the cost of a request. Defaults to a unit cost.
type CostFunc func(r *http.Request) float64

// Config contains configuration for the rate limit middleware.
type Config struct {
	// Limiter makes the admission decisions. Required.
	Limiter *admission.Limiter

	// Key extracts the rate-limit key. Required.
	Key KeyFunc

	// Cost computes per-request cost. Nil means every request costs 1.
	Cost CostFunc

	// Wait holds denied requests in the admission queue instead of
	// answering 429 immediately.
	Wait bool
}

// RateLimit returns middleware enforcing the admission limiter.
func RateLimit(cfg Config) func(http.Handler) http.Handler {
	cost := cfg.Cost
	if cost == nil {
		cost = func(*http.Request) float64 { return 1 }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Key(r)
			if key == "" {
				// No identity to limit on.
				next.ServeHTTP(w, r)
				return
			}

			var res ratelimit.Result
			var err error
			if cfg.Wait {
				res, err = cfg.Limiter.Acquire(r.Context(), key, cost(r))
			} else {
				res = cfg.Limiter.TryConsume(key, cost(r))
			}

			if err != nil {
				writeQueueError(w, err)
				return
			}

			setRateLimitHeaders(w, res)
			if !res.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(res))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP as the rate-limit key, preferring
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderKey returns a KeyFunc reading the given request header, for keys
// like API tokens or tenant identifiers.
func HeaderKey(name string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// writeQueueError maps a queue error to an HTTP response. Both queue error
// kinds are expected backpressure outcomes, not server faults.
func writeQueueError(w http.ResponseWriter, err error) {
	var full *queue.FullError
	var timeout *queue.TimeoutError

	switch {
	case errors.As(err, &full), errors.As(err, &timeout):
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, queue.ErrClosed):
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
	default:
		// Context cancellation: the client is gone, nothing to write.
	}
}

// setRateLimitHeaders reports the remaining budget to the client.
func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(res.Remaining)))
	if res.Queued {
		w.Header().Set("X-RateLimit-Queued", "true")
	}
}

// retryAfterSeconds renders RetryAfter as whole seconds, rounded up, with a
// floor of 1 as required for the Retry-After header.
func retryAfterSeconds(res ratelimit.Result) string {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
