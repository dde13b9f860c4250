// Package api hosts the HTTP server, middleware, and REST handlers for submitting scans and
// reading their results. Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans to queue a keyword scan.
//   - GET /v1/scans/{scan_id} for status and per-portal outcomes.
//   - GET /v1/scans/{scan_id}/results for records as JSON, or CSV with ?format=csv.
//   - POST /v1/scans/{scan_id}/cancel to drop a queued scan or stop a running one.
package api
