// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/checks for on-demand availability check jobs.
//   - /v1/files/... for probe history and unavailable files.
//   - /v1/crawls for starting, polling, and cancelling directory crawls.
//
// The caller identity is taken from the X-User-ID header.
package api
