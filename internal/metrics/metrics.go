// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts frames read from captures after filtering.
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcaplens_packets_total",
			Help: "Total number of packets analyzed",
		},
	)

	// StreamsTotal counts finalized conversations by transport.
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcaplens_streams_total",
			Help: "Total number of reassembled streams",
		},
		[]string{"protocol"},
	)

	// AnalysesTotal counts analyses by outcome (ok, error).
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcaplens_analyses_total",
			Help: "Total number of capture analyses",
		},
		[]string{"result"},
	)

	// AnalysisDurationSeconds measures wall time of a full analysis.
	AnalysisDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pcaplens_analysis_duration_seconds",
			Help:    "Duration of capture analyses in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
	)

	// ResolverLookupsTotal counts resolver lookups by outcome (cached, resolved, failed).
	ResolverLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcaplens_resolver_lookups_total",
			Help: "Total number of name and vendor lookups",
		},
		[]string{"resolver", "result"},
	)

	// UploadsTotal counts HTTP uploads by response status code.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcaplens_uploads_total",
			Help: "Total number of capture uploads",
		},
		[]string{"status"},
	)
)

// Result label values for AnalysesTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
