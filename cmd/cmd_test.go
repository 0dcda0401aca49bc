package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcaplens/internal/analyzer"
	"firestige.xyz/pcaplens/internal/config"
	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/source/sourcetest"
)

// recordingSink keeps every reported result.
type recordingSink struct {
	mu    sync.Mutex
	files []string
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Report(_ context.Context, res *core.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, res.File)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func writeCaptures(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	ep := sourcetest.Endpoints{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 5353, DstPort: 53}
	var paths []string
	for i, name := range names {
		ts := time.Unix(int64(100+i), 0)
		paths = append(paths, sourcetest.WritePcap(t, dir, name,
			sourcetest.UDP(t, ts, ep, []byte("query"))))
	}
	return paths
}

func TestRunAnalyze_Success(t *testing.T) {
	paths := writeCaptures(t, t.TempDir(), "a.pcap", "b.pcap", "c.pcap")
	out := &recordingSink{}

	err := runAnalyze(context.Background(), paths, analyzer.Options{}, 2, out)

	require.NoError(t, err)
	sort.Strings(out.files)
	assert.Equal(t, []string{"a.pcap", "b.pcap", "c.pcap"}, out.files)
}

func TestRunAnalyze_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	paths := writeCaptures(t, dir, "ok.pcap")
	paths = append(paths, filepath.Join(dir, "missing.pcap"))
	out := &recordingSink{}

	err := runAnalyze(context.Background(), paths, analyzer.Options{}, 1, out)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCaptureOpen)
	assert.Contains(t, err.Error(), "1 of 2 capture(s) failed")
	assert.Equal(t, []string{"ok.pcap"}, out.files)
}

func TestRunAnalyze_Cancelled(t *testing.T) {
	paths := writeCaptures(t, t.TempDir(), "a.pcap")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAnalyze(ctx, paths, analyzer.Options{}, 1, &recordingSink{})

	// The single job may or may not be fed before cancellation is seen.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := &config.GlobalConfig{
		Sinks: []config.SinkConfig{
			{Type: "file", Options: map[string]any{"dir": t.TempDir(), "format": "yaml"}},
		},
	}

	out, err := buildSinks(cfg, analyzeOptions{format: "json", quiet: true, outDir: t.TempDir()})
	require.NoError(t, err)
	defer out.Close()
	assert.Len(t, out, 2)

	cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Type: "carrier-pigeon"})
	_, err = buildSinks(cfg, analyzeOptions{format: "json", quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sinks[1]")
}

func TestNewResolvers(t *testing.T) {
	cfg := config.AnalysisConfig{ResolveHostnames: true, VendorLookup: true}

	r := newResolvers(cfg, false)
	assert.NotNil(t, r.Hosts)
	assert.NotNil(t, r.Vendors)

	r = newResolvers(cfg, true)
	assert.Nil(t, r.Hosts)
	assert.Nil(t, r.Vendors)

	r = newResolvers(config.AnalysisConfig{VendorLookup: true}, false)
	assert.Nil(t, r.Hosts)
	assert.NotNil(t, r.Vendors)
}

func TestAnalyzeOptionsFrom_FlagPrecedence(t *testing.T) {
	cfg := &config.GlobalConfig{
		Output:   config.OutputConfig{Format: "yaml", Pretty: true},
		Analysis: config.AnalysisConfig{BPFFilter: "udp"},
	}

	opts := analyzeOptionsFrom(analyzeCmd, cfg)
	assert.Equal(t, "yaml", opts.format)
	assert.True(t, opts.pretty)
	assert.Equal(t, "udp", opts.filter)
	assert.Equal(t, 1, opts.parallel)

	require.NoError(t, analyzeCmd.Flags().Set("format", "table"))
	require.NoError(t, analyzeCmd.Flags().Set("filter", "tcp"))
	t.Cleanup(func() {
		analyzeFormat, analyzeFilter = "json", ""
		analyzeCmd.Flags().Lookup("format").Changed = false
		analyzeCmd.Flags().Lookup("filter").Changed = false
	})

	opts = analyzeOptionsFrom(analyzeCmd, cfg)
	assert.Equal(t, "table", opts.format)
	assert.Equal(t, "tcp", opts.filter)
	assert.True(t, opts.pretty)
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
		wantOut string
	}{
		{
			name:    "defaults",
			path:    "",
			wantOut: "VALID: (defaults)",
		},
		{
			name: "file sink",
			path: write("ok.yml", `
pcaplens:
  output:
    format: table
  sinks:
    - type: file
      options:
        dir: `+dir+`
`),
			wantOut: "output table, 1 sink(s)",
		},
		{
			name: "unknown sink",
			path: write("bad-sink.yml", `
pcaplens:
  sinks:
    - type: carrier-pigeon
`),
			wantErr: "sinks[0]",
		},
		{
			name: "bad format",
			path: write("bad-format.yml", `
pcaplens:
  output:
    format: xml
`),
			wantErr: "INVALID",
		},
		{
			name:    "missing file",
			path:    filepath.Join(dir, "nope.yml"),
			wantErr: "INVALID",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := runValidate(tt.path, &buf)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.wantOut)
		})
	}
}

func TestVersion(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "pcaplens "+version)
}
