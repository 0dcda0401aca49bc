package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/metrics"
	"firestige.xyz/pcaplens/internal/source"
)

// Options configures one analysis run.
type Options struct {
	// File labels the result. AnalyzeFile defaults it to the base name.
	File      string
	Resolvers Resolvers
	Source    source.Options
}

// Analyze drains src into a fresh aggregator and returns the finalized
// result. A source error aborts the run without a partial result.
func Analyze(ctx context.Context, src source.Source, opts Options) (*core.AnalysisResult, error) {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID, "file", opts.File)
	start := time.Now()

	agg := NewAggregator(opts.Resolvers)
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.AnalysesTotal.WithLabelValues(metrics.ResultError).Inc()
			logger.Error("analysis aborted", "packets", agg.Packets(), "error", err)
			return nil, err
		}
		agg.Observe(ctx, &rec)
		metrics.PacketsTotal.Inc()
	}

	result := agg.Result(opts.File)

	metrics.StreamsTotal.WithLabelValues("tcp").Add(float64(agg.tcp.Len()))
	metrics.StreamsTotal.WithLabelValues("udp").Add(float64(agg.udp.Len()))
	metrics.AnalysesTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.AnalysisDurationSeconds.Observe(time.Since(start).Seconds())

	logger.Info("analysis complete",
		"packets", agg.Packets(),
		"tcp_streams", agg.tcp.Len(),
		"udp_streams", agg.udp.Len(),
		"mac_addresses", agg.macs.Len(),
		"ip_addresses", agg.ips.Len(),
		"elapsed", time.Since(start))
	return result, nil
}

// AnalyzeFile opens the capture at path and analyzes it.
func AnalyzeFile(ctx context.Context, path string, opts Options) (*core.AnalysisResult, error) {
	if opts.File == "" {
		opts.File = filepath.Base(path)
	}
	src, err := source.Open(path, opts.Source)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	defer src.Close()
	return Analyze(ctx, src, opts)
}
