// Callisto is a per-key admission-control server.
//
// It fronts an HTTP backend with a per-key token-bucket rate limiter and a
// bounded FIFO waiting queue, providing:
//   - Per-key token buckets with configurable burst and refill rate
//   - Bounded per-key queues with strict FIFO admission
//   - Fail-open or fail-closed handling of undecidable requests
//   - Prometheus metrics and structured logging
//
// Usage:
//
//	# Start server with default configuration
//	callisto run
//
//	# Start with custom configuration file
//	callisto run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	callisto validate --config /path/to/config.yaml
//
//	# Show version information
//	callisto version
package main

func main() {
	Execute()
}
