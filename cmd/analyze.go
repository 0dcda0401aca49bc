package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pcaplens/internal/analyzer"
	"firestige.xyz/pcaplens/internal/bpfutil"
	"firestige.xyz/pcaplens/internal/config"
	"firestige.xyz/pcaplens/internal/resolve"
	"firestige.xyz/pcaplens/internal/sink"
	"firestige.xyz/pcaplens/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture>...",
	Short: "Analyze one or more pcap/pcapng captures",
	Long: `Analyze pcap or pcapng captures and print one report per file.

Flags override the matching config keys; unset flags fall back to the
config file and then to built-in defaults.

Examples:
  pcaplens analyze trace.pcap
  pcaplens analyze --format table trace.pcapng
  pcaplens analyze --filter "tcp port 80" --no-resolve *.pcap
  pcaplens analyze --out-dir reports/ --parallel 4 captures/*.pcap`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := analyzeOptionsFrom(cmd, globalCfg)
		out, err := buildSinks(globalCfg, opts)
		if err != nil {
			return err
		}
		defer out.Close()

		tmpl := analyzer.Options{
			Resolvers: newResolvers(globalCfg.Analysis, opts.noResolve),
			Source:    source.Options{Filter: opts.filter, Compile: bpfutil.Compile},
		}
		return runAnalyze(ctx, args, tmpl, opts.parallel, out)
	},
}

var (
	analyzeFormat    string
	analyzePretty    bool
	analyzeFilter    string
	analyzeNoResolve bool
	analyzeOutDir    string
	analyzeParallel  int
	analyzeQuiet     bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "o", "json",
		"output format: json, yaml or table")
	analyzeCmd.Flags().BoolVar(&analyzePretty, "pretty", false,
		"indent JSON output")
	analyzeCmd.Flags().StringVar(&analyzeFilter, "filter", "",
		"BPF expression; frames that do not match are skipped")
	analyzeCmd.Flags().BoolVar(&analyzeNoResolve, "no-resolve", false,
		"skip reverse DNS and vendor lookups")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out-dir", "",
		"also write one report file per capture into this directory")
	analyzeCmd.Flags().IntVarP(&analyzeParallel, "parallel", "p", 1,
		"number of captures analyzed concurrently")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false,
		"do not print reports to stdout")
}

type analyzeOptions struct {
	format    string
	pretty    bool
	filter    string
	noResolve bool
	outDir    string
	parallel  int
	quiet     bool
}

// analyzeOptionsFrom merges flags over config. A flag wins only when set
// explicitly.
func analyzeOptionsFrom(cmd *cobra.Command, cfg *config.GlobalConfig) analyzeOptions {
	opts := analyzeOptions{
		format:   cfg.Output.Format,
		pretty:   cfg.Output.Pretty,
		filter:   cfg.Analysis.BPFFilter,
		outDir:   analyzeOutDir,
		parallel: analyzeParallel,
		quiet:    analyzeQuiet,
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		opts.format = analyzeFormat
	}
	if flags.Changed("pretty") {
		opts.pretty = analyzePretty
	}
	if flags.Changed("filter") {
		opts.filter = analyzeFilter
	}
	if flags.Changed("no-resolve") {
		opts.noResolve = analyzeNoResolve
	}
	if opts.parallel < 1 {
		opts.parallel = 1
	}
	if opts.parallel > runtime.NumCPU() {
		opts.parallel = runtime.NumCPU()
	}
	return opts
}

// newResolvers builds the lookups enabled by config. noResolve disables both.
func newResolvers(cfg config.AnalysisConfig, noResolve bool) analyzer.Resolvers {
	var r analyzer.Resolvers
	if noResolve {
		return r
	}
	if cfg.ResolveHostnames {
		r.Hosts = resolve.NewDNSResolver(resolve.DNSOptions{
			Timeout:  cfg.ResolveTimeout,
			CacheTTL: cfg.ResolverCacheTTL,
		})
	}
	if cfg.VendorLookup {
		r.Vendors = resolve.NewOUIResolver()
	}
	return r
}

// buildSinks assembles stdout, the optional report directory and every
// configured sink into one fan-out.
func buildSinks(cfg *config.GlobalConfig, opts analyzeOptions) (sink.Multi, error) {
	var out sink.Multi
	fail := func(err error) (sink.Multi, error) {
		out.Close()
		return nil, err
	}

	if !opts.quiet {
		stdout, err := sink.NewStdout(opts.format, opts.pretty)
		if err != nil {
			return fail(err)
		}
		out = append(out, stdout)
	}
	if opts.outDir != "" {
		fs, err := sink.NewFileSink(sink.FileConfig{Dir: opts.outDir, Format: opts.format, Pretty: true})
		if err != nil {
			return fail(err)
		}
		out = append(out, fs)
	}
	for i, sc := range cfg.Sinks {
		s, err := sink.New(sc.Type, sc.Options)
		if err != nil {
			return fail(fmt.Errorf("sinks[%d]: %w", i, err))
		}
		out = append(out, s)
	}
	return out, nil
}

// runAnalyze analyzes files with up to parallel workers and reports every
// result to out. A failed capture does not stop the others; all failures
// are returned together.
func runAnalyze(ctx context.Context, files []string, tmpl analyzer.Options, parallel int, out sink.Sink) error {
	if parallel < 1 {
		parallel = 1
	}

	jobs := make(chan string)
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for range parallel {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				opts := tmpl
				opts.File = ""
				res, err := analyzer.AnalyzeFile(ctx, path, opts)
				if err != nil {
					slog.Error("analysis failed", "path", path, "error", err)
					record(fmt.Errorf("%s: %w", path, err))
					continue
				}
				if err := out.Report(ctx, res); err != nil {
					slog.Error("report failed", "path", path, "error", err)
					record(fmt.Errorf("%s: %w", path, err))
				}
			}
		}()
	}

feed:
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			record(ctx.Err())
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d capture(s) failed: %w", len(errs), len(files), errors.Join(errs...))
	}
	return nil
}
