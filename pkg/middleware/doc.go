// Package middleware provides net/http middleware that puts the admission
// limiter in front of an HTTP handler.
//
// The middleware extracts a rate-limit key from each request, asks the
// limiter whether the request may proceed, sets X-RateLimit-* response
// headers, and answers 429 Too Many Requests on denial. Callers choose
// between fail-fast (deny immediately) and wait mode (hold the request in
// the admission queue until capacity, timeout, or disconnect):
//
//	handler := middleware.RateLimit(middleware.Config{
//	    Limiter: limiter,
//	    Key:     middleware.ClientIP,
//	    Wait:    true,
//	})(mux)
package middleware
