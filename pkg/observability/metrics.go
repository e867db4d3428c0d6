// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for parse operations. All instrumentation is optional; the engine
// runs unchanged when nothing initializes this package.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "phase_duration_seconds",
			Help:      "Duration of parse phases in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"phase", "status"},
	)

	rowsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "rows_total",
			Help:      "Total number of rows parsed",
		},
		[]string{"status"},
	)

	bytesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comet",
			Subsystem: "source",
			Name:      "bytes_loaded_total",
			Help:      "Total input bytes loaded after decompression",
		},
		[]string{"compression"},
	)

	parseWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "warnings_total",
			Help:      "Total non-fatal parse diagnostics",
		},
		[]string{"kind"},
	)

	parseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "errors_total",
			Help:      "Total fatal parse errors",
		},
		[]string{"error_type"},
	)

	poolPromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "pool_promotions_total",
			Help:      "Total pooled columns promoted to plain string",
		},
	)

	parseWorkers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "workers",
			Help:      "Worker count per parallel parse",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	activeParses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "comet",
			Subsystem: "parse",
			Name:      "active",
			Help:      "Parses currently in flight",
		},
	)
)

// ParseMetrics records the metrics of one parse. The zero value is not
// usable; create with NewParseMetrics, which marks the parse in flight, and
// finish with Done.
type ParseMetrics struct {
	start time.Time
	once  sync.Once
}

// NewParseMetrics begins metric collection for one parse.
func NewParseMetrics() *ParseMetrics {
	activeParses.Inc()
	return &ParseMetrics{start: time.Now()}
}

// RecordPhase records the duration of one named phase.
func (pm *ParseMetrics) RecordPhase(phase string, d time.Duration, err error) {
	parseDuration.WithLabelValues(phase, status(err)).Observe(d.Seconds())
}

// RecordLoad records the loaded byte volume and its compression format.
func (pm *ParseMetrics) RecordLoad(bytes int, compression string) {
	bytesLoaded.WithLabelValues(compression).Add(float64(bytes))
}

// RecordRows records the parsed row count.
func (pm *ParseMetrics) RecordRows(rows int, err error) {
	rowsParsed.WithLabelValues(status(err)).Add(float64(rows))
}

// RecordWarning counts one diagnostic of the given kind.
func (pm *ParseMetrics) RecordWarning(kind string) {
	parseWarnings.WithLabelValues(kind).Inc()
}

// RecordError counts one fatal error of the given taxonomy type.
func (pm *ParseMetrics) RecordError(errorType string) {
	parseErrors.WithLabelValues(errorType).Inc()
}

// RecordPoolPromotion counts one pooled column outgrowing its cardinality
// threshold.
func (pm *ParseMetrics) RecordPoolPromotion() {
	poolPromotions.Inc()
}

// RecordWorkers records the worker count chosen for a parallel parse.
func (pm *ParseMetrics) RecordWorkers(n int) {
	parseWorkers.Observe(float64(n))
}

// Done finishes the parse, recording its total duration. Safe to call more
// than once; only the first call records.
func (pm *ParseMetrics) Done(err error) {
	pm.once.Do(func() {
		activeParses.Dec()
		parseDuration.WithLabelValues("total", status(err)).Observe(time.Since(pm.start).Seconds())
	})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
