// Package api hosts the HTTP server for snapshot jobs. Routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - POST /v1/analyze to preview the strategy chosen for a URL.
//   - POST /v1/jobs to submit a job, GET /v1/jobs/{job_id} to poll it.
//   - GET /v1/jobs/{job_id}/pages for a paged view of crawled pages.
//   - GET /v1/jobs/{job_id}/preview and /download to fetch the artifact.
package api
