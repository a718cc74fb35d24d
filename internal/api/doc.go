// Package api hosts the HTTP server, middleware, and REST handlers that sit in
// front of the scraper. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs/scrape and /v1/jobs/scrape/batch to scrape postings.
//   - GET, PATCH and DELETE on /v1/jobs and /v1/jobs/{id} for the caller's saved jobs.
//
// Jobs belong to the owner named by the X-User-ID header.
package api
