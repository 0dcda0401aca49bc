package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"firestige.xyz/pcaplens/internal/core"
)

// TypeFile is the registered name of the file sink.
const TypeFile = "file"

// FileConfig configures the file sink.
type FileConfig struct {
	Dir    string `mapstructure:"dir" default:"."`
	Format string `mapstructure:"format" default:"json"`
	Pretty bool   `mapstructure:"pretty" default:"true"`
}

// FileSink writes one report file per analyzed capture into a directory.
type FileSink struct {
	cfg FileConfig
}

// NewFileSink creates the output directory if needed.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if !ValidFormat(cfg.Format) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, cfg.Format)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{cfg: cfg}, nil
}

func newFileSink(options map[string]any) (Sink, error) {
	var cfg FileConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	return NewFileSink(cfg)
}

func (s *FileSink) Name() string {
	return TypeFile
}

// Path returns the report path for a capture named file. The capture's own
// extension is kept, so trace.pcap and trace.pcapng get distinct reports.
func (s *FileSink) Path(file string) string {
	base := filepath.Base(file)
	if base == "." || base == string(filepath.Separator) {
		base = "capture"
	}
	ext := s.cfg.Format
	if ext == FormatTable {
		ext = "txt"
	}
	return filepath.Join(s.cfg.Dir, base+"."+ext)
}

// Report writes the result through a temp file renamed into place.
func (s *FileSink) Report(_ context.Context, res *core.AnalysisResult) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	var buf bytes.Buffer
	if err := Encode(&buf, res, s.cfg.Format, s.cfg.Pretty); err != nil {
		return err
	}

	path := s.Path(res.File)
	tmp, err := os.CreateTemp(s.cfg.Dir, ".pcaplens-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.Info("report saved", "file", res.File, "path", path)
	return nil
}

func (s *FileSink) Close() error {
	return nil
}
