package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Publisher metrics
	ServiceStatus    *prometheus.GaugeVec
	LinesReceived    *prometheus.CounterVec
	LinesPublished   *prometheus.CounterVec
	LinesDropped     *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Subscribers      *prometheus.GaugeVec
	EventsFired      *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "logstream",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=running)",
			},
			[]string{"service"},
		),

		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logstream",
				Subsystem: "lines",
				Name:      "received_total",
				Help:      "Total number of raw lines read from sources",
			},
			[]string{"service"},
		),

		LinesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logstream",
				Subsystem: "lines",
				Name:      "published_total",
				Help:      "Total number of parsed lines dispatched to subscribers",
			},
			[]string{"service"},
		),

		LinesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logstream",
				Subsystem: "lines",
				Name:      "dropped_total",
				Help:      "Total number of lines dropped before dispatch",
			},
			[]string{"service", "reason"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "logstream",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Per-line fan-out duration in seconds",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"service"},
		),

		Subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "logstream",
				Subsystem: "subscribers",
				Name:      "active",
				Help:      "Number of currently registered subscribers",
			},
			[]string{"service"},
		),

		EventsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logstream",
				Subsystem: "events",
				Name:      "fired_total",
				Help:      "Total number of pattern events that fired",
			},
			[]string{"service"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "logstream",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),
	}
}
