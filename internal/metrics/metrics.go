// Package metrics holds the Prometheus collectors shared by the writer,
// registry, query engine and HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filelog"

var (
	// RecordsWritten counts lines appended per logger.
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "records_total",
		Help:      "Records appended to log files",
	}, []string{"logger"})

	// WriteErrors counts failed appends per logger.
	WriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "errors_total",
		Help:      "Failed record appends",
	}, []string{"logger"})

	// Rotations counts rotations. Labels: result (ok, error)
	Rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "rotations_total",
		Help:      "File rotations by result",
	}, []string{"result"})

	ConsoleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "console_failures_total",
		Help:      "Console mirror writes that failed",
	})

	LinesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "lines_scanned_total",
		Help:      "Lines read by the query engine",
	})

	MalformedLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "malformed_lines_total",
		Help:      "Lines skipped because they did not decode",
	})

	// QueryDuration measures scans. Labels: op (scan, segments, summary, histogram)
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Query latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})
)
