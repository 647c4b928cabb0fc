// Package server provides the Callisto admission-control HTTP server.
//
// The server guards an application handler with the admission limiter and
// exposes operational endpoints: /healthz for liveness, /admission/status for
// a live queue snapshot, DELETE /admission/queues[/{key}] for clearing queues,
// and the Prometheus metrics endpoint when enabled.
package server
