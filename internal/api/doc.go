// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/cookies for the harvester and browser extension to drop a session cookie.
//   - GET /v1/cases for paged case listings (API key or rolling Passport header).
//   - GET /v1/observation for the latest posting day summary.
package api
