// Package health exposes a small HTTP surface for liveness probes and
// operational statistics: GET /healthz answers 200 while the pipeline
// is running and its transport connected, 503 otherwise, and GET /stats
// returns a JSON snapshot of the pipeline counters.
package health
