package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	defaultLokiBatchSize     = 100
	defaultLokiFlushInterval = 5 * time.Second
	lokiMaxRetries           = 3
	lokiRetryBaseDelay       = 100 * time.Millisecond
)

// LokiConfig contains configuration for Loki writer.
type LokiConfig struct {
	Endpoint      string            // Loki push endpoint URL
	Labels        map[string]string // Stream labels; "job" defaults to "pcaplens"
	BatchSize     int               // Entries per push
	FlushInterval string            // e.g. "5s"

	// ErrorOutput receives push failures; default os.Stderr.
	ErrorOutput io.Writer
}

// LokiWriter implements io.Writer and pushes log lines to Grafana Loki in
// batches. A batch that still fails after retries is dropped.
type LokiWriter struct {
	endpoint      string
	labels        map[string]string
	batchSize     int
	flushInterval time.Duration
	httpClient    *http.Client
	errOut        io.Writer

	mu      sync.Mutex // Guards batch and closed; never held during a push
	batch   []logEntry
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup

	pushMu  sync.Mutex // Serializes pushes so batches arrive in order
	dropped atomic.Uint64
}

type logEntry struct {
	timestamp time.Time
	line      string
}

// lokiPushRequest is the Loki push API body.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewLokiWriter creates a writer and starts its background flusher.
func NewLokiWriter(cfg LokiConfig) (*LokiWriter, error) {
	flushInterval := defaultLokiFlushInterval
	if cfg.FlushInterval != "" {
		duration, err := time.ParseDuration(cfg.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid flush interval: %w", err)
		}
		if duration <= 0 {
			return nil, fmt.Errorf("invalid flush interval: %s", cfg.FlushInterval)
		}
		flushInterval = duration
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultLokiBatchSize
	}

	labels := maps.Clone(cfg.Labels)
	if labels == nil {
		labels = make(map[string]string)
	}
	if _, ok := labels["job"]; !ok {
		labels["job"] = "pcaplens"
	}

	errOut := cfg.ErrorOutput
	if errOut == nil {
		errOut = os.Stderr
	}

	lw := &LokiWriter{
		endpoint:      cfg.Endpoint,
		labels:        labels,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		errOut:        errOut,
		batch:         make([]logEntry, 0, batchSize),
		closeCh:       make(chan struct{}),
	}

	lw.wg.Add(1)
	go lw.flusher()

	return lw, nil
}

// Write queues one log line. Write never fails because of Loki itself.
func (lw *LokiWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return 0, fmt.Errorf("loki writer is closed")
	}

	// slog reuses its buffer, so the line is copied
	lw.batch = append(lw.batch, logEntry{timestamp: time.Now(), line: string(bytes.TrimRight(p, "\n"))})

	var full []logEntry
	if len(lw.batch) >= lw.batchSize {
		full = lw.takeLocked()
	}
	lw.mu.Unlock()

	lw.push(full)
	return len(p), nil
}

// Dropped returns the number of lines discarded after failed pushes.
func (lw *LokiWriter) Dropped() uint64 {
	return lw.dropped.Load()
}

// Close flushes the remaining lines and stops the flusher.
func (lw *LokiWriter) Close() error {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil
	}
	lw.closed = true
	rest := lw.takeLocked()
	lw.mu.Unlock()

	close(lw.closeCh)
	lw.wg.Wait()
	return lw.push(rest)
}

func (lw *LokiWriter) flusher() {
	defer lw.wg.Done()

	ticker := time.NewTicker(lw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lw.mu.Lock()
			var pending []logEntry
			if !lw.closed {
				pending = lw.takeLocked()
			}
			lw.mu.Unlock()
			lw.push(pending)

		case <-lw.closeCh:
			return
		}
	}
}

// takeLocked swaps out the current batch. Must be called with lw.mu locked.
func (lw *LokiWriter) takeLocked() []logEntry {
	if len(lw.batch) == 0 {
		return nil
	}
	entries := lw.batch
	lw.batch = make([]logEntry, 0, lw.batchSize)
	return entries
}

// push sends entries with retries, dropping them on failure. Called without
// lw.mu held.
func (lw *LokiWriter) push(entries []logEntry) error {
	if len(entries) == 0 {
		return nil
	}
	lw.pushMu.Lock()
	defer lw.pushMu.Unlock()

	values := make([][]string, len(entries))
	for i, entry := range entries {
		values[i] = []string{strconv.FormatInt(entry.timestamp.UnixNano(), 10), entry.line}
	}

	data, err := jsoniter.Marshal(lokiPushRequest{
		Streams: []lokiStream{{Stream: lw.labels, Values: values}},
	})
	if err == nil {
		err = lw.sendWithRetry(data)
	}
	if err != nil {
		lw.dropped.Add(uint64(len(entries)))
		fmt.Fprintf(lw.errOut, "loki: dropped %d log lines: %v\n", len(entries), err)
		return err
	}
	return nil
}

// sendWithRetry retries with exponential backoff.
func (lw *LokiWriter) sendWithRetry(data []byte) error {
	var lastErr error
	for attempt := 0; attempt < lokiMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(lokiRetryBaseDelay << (attempt - 1))
		}
		if lastErr = lw.send(data); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("loki push failed after %d retries: %w", lokiMaxRetries, lastErr)
}

func (lw *LokiWriter) send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lw.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lw.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki push failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}
