// Package metrics exposes Prometheus collectors for the billing service:
// HTTP request counters and latency per route, webhook outcomes per event
// class, checkout and portal outcomes, and reconciliation results.
package metrics
