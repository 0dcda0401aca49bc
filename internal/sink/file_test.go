package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	s, err := New(TypeFile, map[string]any{"dir": dir, "pretty": false})
	require.NoError(t, err)

	require.NoError(t, s.Report(context.Background(), sampleResult()))

	data, err := os.ReadFile(filepath.Join(dir, "sample.pcap.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file":"sample.pcap"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSinkPath(t *testing.T) {
	s, err := NewFileSink(FileConfig{Dir: t.TempDir(), Format: FormatTable})
	require.NoError(t, err)

	assert.Equal(t, "trace.pcapng.txt", filepath.Base(s.Path("/tmp/uploads/trace.pcapng")))
	assert.Equal(t, "capture.txt", filepath.Base(s.Path("")))
}

func TestFileSinkCapturesDifferingByExtension(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(FileConfig{Dir: dir, Format: FormatJSON})
	require.NoError(t, err)

	assert.NotEqual(t, s.Path("trace.pcap"), s.Path("trace.pcapng"))

	for _, name := range []string{"trace.pcap", "trace.pcapng"} {
		res := sampleResult()
		res.File = name
		require.NoError(t, s.Report(context.Background(), res))
	}

	for _, name := range []string{"trace.pcap", "trace.pcapng"} {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"file":"`+name+`"`)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileSinkBadFormat(t *testing.T) {
	_, err := NewFileSink(FileConfig{Dir: t.TempDir(), Format: "xml"})
	assert.Error(t, err)
}
