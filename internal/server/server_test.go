package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcaplens/internal/analyzer"
	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/source/sourcetest"
)

func analyzeFile(ctx context.Context, path, file string) (*core.AnalysisResult, error) {
	return analyzer.AnalyzeFile(ctx, path, analyzer.Options{File: file})
}

func newTestServer(t *testing.T, limit int64) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Options{
		MaxUploadBytes: limit,
		RequestTimeout: 5 * time.Second,
		TempDir:        dir,
		Analyze:        analyzeFile,
	}), dir
}

func uploadBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func sampleCapture(t *testing.T) []byte {
	t.Helper()
	base := time.Unix(100, 0)
	ep := sourcetest.Endpoints{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 40000, DstPort: 80}
	path := sourcetest.WritePcap(t, t.TempDir(), "sample.pcap",
		sourcetest.TCP(t, base, ep, 1, []byte("GET / HTTP/1.1\r\n\r\n")),
		sourcetest.UDP(t, base.Add(time.Second), ep, []byte("ping")),
	)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}

func TestAnalyzeUpload(t *testing.T) {
	srv, dir := newTestServer(t, 1<<20)
	body, ct := uploadBody(t, "file", "capture.pcap", sampleCapture(t))

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var res struct {
		File        string `json:"file"`
		CaptureInfo struct {
			TotalPackets int `json:"total_packets"`
		} `json:"capture_info"`
		TCPStreams []map[string]any `json:"tcp_streams"`
		UDPStreams []map[string]any `json:"udp_streams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "capture.pcap", res.File)
	assert.Equal(t, 2, res.CaptureInfo.TotalPackets)
	assert.Len(t, res.TCPStreams, 1)
	assert.Len(t, res.UDPStreams, 1)

	assertEmptyDir(t, dir)
}

func TestAnalyzeRejectsGarbage(t *testing.T) {
	srv, dir := newTestServer(t, 1<<20)
	body, ct := uploadBody(t, "file", "notes.txt", []byte("definitely not a capture"))

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, srv, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail"`)
	assert.NotContains(t, rec.Body.String(), dir)
	assertEmptyDir(t, dir)
}

func TestAnalyzeMissingFile(t *testing.T) {
	srv, dir := newTestServer(t, 1<<20)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"wrong field", func() *http.Request {
			body, ct := uploadBody(t, "upload", "capture.pcap", []byte("x"))
			r := httptest.NewRequest(http.MethodPost, "/analyze", body)
			r.Header.Set("Content-Type", ct)
			return r
		}},
		{"not multipart", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("{}"))
			r.Header.Set("Content-Type", "application/json")
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.req())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assertEmptyDir(t, dir)
}

func TestAnalyzeTooLarge(t *testing.T) {
	srv, dir := newTestServer(t, 512)
	body, ct := uploadBody(t, "file", "big.pcap", bytes.Repeat([]byte{0xd4}, 4096))

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, srv, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assertEmptyDir(t, dir)
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestAnalyzeInternalError(t *testing.T) {
	dir := t.TempDir()
	srv := New(Options{
		TempDir: dir,
		Analyze: func(context.Context, string, string) (*core.AnalysisResult, error) {
			return nil, errors.New("boom")
		},
	})
	body, ct := uploadBody(t, "file", "capture.pcap", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, srv, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assertEmptyDir(t, dir)
}

func TestAnalyzeSeesUploadedBytes(t *testing.T) {
	dir := t.TempDir()
	var seen []byte
	var seenName string
	srv := New(Options{
		TempDir: dir,
		Analyze: func(_ context.Context, path, file string) (*core.AnalysisResult, error) {
			assert.Equal(t, dir, filepath.Dir(path))
			seen, _ = os.ReadFile(path)
			seenName = file
			return &core.AnalysisResult{File: file}, nil
		},
	})
	body, ct := uploadBody(t, "file", "../../etc/evil.pcap", []byte("payload"))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("payload"), seen)
	assert.Equal(t, "evil.pcap", seenName)
	assertEmptyDir(t, dir)
}

func TestPreflight(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := do(t, srv, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAddrBeforeServe(t *testing.T) {
	srv := New(Options{Listen: ":8000"})
	assert.Equal(t, ":8000", srv.Addr())
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
