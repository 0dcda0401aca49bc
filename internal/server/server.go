// Package server exposes capture analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/metrics"
	"firestige.xyz/pcaplens/internal/sink"
)

const (
	uploadField     = "file"
	shutdownTimeout = 10 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AnalyzeFunc analyzes the capture stored at path, labelling the result
// with file.
type AnalyzeFunc func(ctx context.Context, path, file string) (*core.AnalysisResult, error)

// Options configures the HTTP server.
type Options struct {
	Listen         string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	TempDir        string // Empty = os.TempDir()
	Analyze        AnalyzeFunc
	Sink           sink.Sink // Optional; receives every successful result
}

// Server serves POST /analyze and GET /healthz.
type Server struct {
	opts     Options
	server   *http.Server
	listener net.Listener
}

// New creates a server. Analyze is required.
func New(opts Options) *Server {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Server{opts: opts}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/healthz", handleHealth)
	return withCORS(mux)
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("stopping http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("http server stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Serve.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Listen
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		metrics.UploadsTotal.WithLabelValues(strconv.Itoa(rec.status)).Inc()
	}()

	if r.Method != http.MethodPost {
		rec.Header().Set("Allow", http.MethodPost)
		writeError(rec, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(rec, r.Body, s.opts.MaxUploadBytes)
	}

	path, name, err := s.receive(r)
	if path != "" {
		defer removeTemp(path)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(rec, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(rec, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.opts.Analyze(ctx, path, name)
	if err != nil {
		if errors.Is(err, core.ErrCaptureOpen) || errors.Is(err, core.ErrCaptureRead) {
			slog.Warn("rejected upload", "file", name, "error", err)
			writeError(rec, http.StatusBadRequest, "not a readable pcap or pcapng capture")
			return
		}
		slog.Error("analysis failed", "file", name, "error", err)
		writeError(rec, http.StatusInternalServerError, "analysis failed")
		return
	}

	if s.opts.Sink != nil {
		if err := s.opts.Sink.Report(ctx, res); err != nil {
			slog.Warn("sink report failed", "file", name, "sink", s.opts.Sink.Name(), "error", err)
		}
	}
	writeJSON(rec, http.StatusOK, res)
}

// receive streams the upload field into a fresh temp file. The returned
// path is set whenever a file was created, even on error.
func (s *Server) receive(r *http.Request) (path, name string, err error) {
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct != "multipart/form-data" {
		return "", "", errors.New("expected multipart/form-data with a 'file' field")
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", errors.New("missing 'file' field")
		}
		if err != nil {
			return "", "", err
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		name = filepath.Base(part.FileName())
		if name == "." || name == string(filepath.Separator) {
			name = "upload.pcap"
		}

		path = filepath.Join(s.opts.TempDir, "pcaplens-"+uuid.NewString()+".pcap")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return "", "", fmt.Errorf("create temp file: %w", err)
		}
		_, copyErr := io.Copy(f, part)
		closeErr := f.Close()
		part.Close()
		if copyErr != nil {
			return path, name, copyErr
		}
		if closeErr != nil {
			return path, name, closeErr
		}
		return path, name, nil
	}
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not delete temp file", "path", path, "error", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"detail":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
