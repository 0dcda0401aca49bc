package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/pcaplens/internal/core"
)

// TypeKafka is the registered name of the Kafka sink.
const TypeKafka = "kafka"

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"` // required
	Topic        string        `mapstructure:"topic"`   // required
	BatchSize    int           `mapstructure:"batch_size" default:"1"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" default:"100ms"`
	Compression  string        `mapstructure:"compression" default:"snappy"` // none|gzip|snappy|lz4
	MaxAttempts  int           `mapstructure:"max_attempts" default:"3"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each result as one JSON message keyed by file name.
type KafkaSink struct {
	cfg    KafkaConfig
	writer messageWriter

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewKafkaSink validates cfg and creates the producer.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
	}

	switch cfg.Compression {
	case "none", "":
	case "gzip":
		writer.Compression = compress.Gzip
	case "snappy":
		writer.Compression = compress.Snappy
	case "lz4":
		writer.Compression = compress.Lz4
	default:
		return nil, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	slog.Info("kafka sink created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"compression", cfg.Compression,
	)
	return &KafkaSink{cfg: cfg, writer: writer}, nil
}

func newKafkaSink(options map[string]any) (Sink, error) {
	var cfg KafkaConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	return NewKafkaSink(cfg)
}

func (s *KafkaSink) Name() string {
	return TypeKafka
}

// Report publishes res.
func (s *KafkaSink) Report(ctx context.Context, res *core.AnalysisResult) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}

	value, err := json.Marshal(res)
	if err != nil {
		s.errorCount.Add(1)
		return fmt.Errorf("serialize result failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(res.File),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}

	s.reportedCount.Add(1)
	return nil
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		slog.Error("error closing kafka writer", "error", err)
		return err
	}
	slog.Info("kafka sink stopped",
		"total_reported", s.reportedCount.Load(),
		"total_errors", s.errorCount.Load(),
	)
	return nil
}
