package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pcaplens/internal/analyzer"
	"firestige.xyz/pcaplens/internal/bpfutil"
	"firestige.xyz/pcaplens/internal/config"
	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/metrics"
	"firestige.xyz/pcaplens/internal/server"
	"firestige.xyz/pcaplens/internal/sink"
	"firestige.xyz/pcaplens/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve capture analysis over HTTP",
	Long: `Run the HTTP upload endpoint in the foreground.

Endpoints:
  POST /analyze   multipart upload, field "file"; responds with the JSON report
  GET  /healthz   liveness probe

Configured sinks also receive every report. SIGINT or SIGTERM shuts the
server down gracefully.

Examples:
  pcaplens serve
  pcaplens serve --listen 127.0.0.1:8080 -c pcaplens.yml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("listen") {
			globalCfg.Server.Listen = serveListen
		}
		return runServe(ctx, globalCfg)
	},
}

var serveListen string

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", ":8000",
		"HTTP listen address")
}

func runServe(ctx context.Context, cfg *config.GlobalConfig) error {
	var reports sink.Multi
	for _, sc := range cfg.Sinks {
		s, err := sink.New(sc.Type, sc.Options)
		if err != nil {
			reports.Close()
			return err
		}
		reports = append(reports, s)
	}
	defer reports.Close()

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Stop(stopCtx); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	// Resolvers are shared so their caches outlive a single upload.
	resolvers := newResolvers(cfg.Analysis, false)
	srcOpts := source.Options{Filter: cfg.Analysis.BPFFilter, Compile: bpfutil.Compile}

	opts := server.Options{
		Listen:         cfg.Server.Listen,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
		RequestTimeout: cfg.Server.RequestTimeout,
		TempDir:        cfg.Server.TempDir,
		Analyze: func(ctx context.Context, path, file string) (*core.AnalysisResult, error) {
			return analyzer.AnalyzeFile(ctx, path, analyzer.Options{
				File:      file,
				Resolvers: resolvers,
				Source:    srcOpts,
			})
		},
	}
	if len(reports) > 0 {
		opts.Sink = reports
	}
	return server.New(opts).Run(ctx)
}
