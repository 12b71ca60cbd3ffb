// Package httpserver runs the billing HTTP API with graceful shutdown.
//
// Server.Run blocks until the context is cancelled, SIGINT/SIGTERM arrives or
// the listener fails, then drains in-flight requests within the shutdown
// timeout. LivenessHandler and ReadinessHandler back the /health endpoints;
// readiness runs named dependency checks (postgres, redis) per request.
package httpserver
