// Package metric provides Prometheus-based metrics collection and an HTTP
// server for logstream monitoring.
//
// The Registry wraps a private prometheus.Registry with named, service-scoped
// registration and duplicate detection, and carries the core platform metrics
// (line counters, dispatch duration, subscriber gauge) that the publisher
// updates. Components register their own metrics through the Registrar
// interface; a nil registry disables metrics throughout the module.
//
// The Server exposes the registry over HTTP at /metrics (OpenMetrics enabled)
// along with a trivial /health endpoint.
package metric
