package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logstream/metric"
)

// metrics binds the shared platform metrics to one publisher's
// service label so the hot path never formats labels per line.
type metrics struct {
	status           prometheus.Gauge
	linesReceived    prometheus.Counter
	linesPublished   prometheus.Counter
	parseDrops       prometheus.Counter
	dispatchDuration prometheus.Observer
	subscribers      prometheus.Gauge
	eventsFired      prometheus.Counter
}

// newMetrics returns nil when registry is nil, which disables all
// metric updates in the publisher.
func newMetrics(registry *metric.Registry, service string) *metrics {
	if registry == nil {
		return nil
	}
	core := registry.CoreMetrics()
	return &metrics{
		status:           core.ServiceStatus.WithLabelValues(service),
		linesReceived:    core.LinesReceived.WithLabelValues(service),
		linesPublished:   core.LinesPublished.WithLabelValues(service),
		parseDrops:       core.LinesDropped.WithLabelValues(service, "parse_error"),
		dispatchDuration: core.DispatchDuration.WithLabelValues(service),
		subscribers:      core.Subscribers.WithLabelValues(service),
		eventsFired:      core.EventsFired.WithLabelValues(service),
	}
}
