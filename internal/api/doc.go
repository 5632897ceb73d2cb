// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tracking and /v1/tracking/{kind} for the persisted descriptor and
//     the latest session of each resource kind.
//   - POST /v1/tracking/{kind}/jobs and /cancel to start or abandon tracking.
//   - GET /v1/runs and /v1/runs/{run_id} for session history via the
//     RunRepository interface.
package api
