package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"firestige.xyz/pcaplens/internal/core"
)

// TypeStdout is the registered name of the console sink.
const TypeStdout = "stdout"

// WriterSink encodes each result onto a writer. Concurrent reports are
// serialized so outputs never interleave.
type WriterSink struct {
	name   string
	w      io.Writer
	format string
	pretty bool
	mu     sync.Mutex
}

// StdoutConfig configures the console sink.
type StdoutConfig struct {
	Format string `mapstructure:"format" default:"json"`
	Pretty bool   `mapstructure:"pretty"`
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer, format string, pretty bool) (*WriterSink, error) {
	if format == "" {
		format = FormatJSON
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, format)
	}
	return &WriterSink{name: TypeStdout, w: w, format: format, pretty: pretty}, nil
}

// NewStdout creates a console sink. JSON is indented when pretty is set or
// stdout is a terminal.
func NewStdout(format string, pretty bool) (*WriterSink, error) {
	return NewWriterSink(os.Stdout, format, pretty || term.IsTerminal(int(os.Stdout.Fd())))
}

func newStdoutSink(options map[string]any) (Sink, error) {
	var cfg StdoutConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	return NewStdout(cfg.Format, cfg.Pretty)
}

// Name returns the sink name.
func (s *WriterSink) Name() string {
	return s.name
}

// Report encodes res onto the writer.
func (s *WriterSink) Report(_ context.Context, res *core.AnalysisResult) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	var buf bytes.Buffer
	if err := Encode(&buf, res, s.format, s.pretty); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(buf.Bytes())
	return err
}

// Close is a no-op; the writer is owned by the caller.
func (s *WriterSink) Close() error {
	return nil
}
