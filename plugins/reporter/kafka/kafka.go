// Package kafka implements the Kafka reporter plugin.
// Publishes encounters keyed by peer identity with batching and compression.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultEncoding     = "json"
)

// messageWriter is the part of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes encounters to a topic.
type KafkaReporter struct {
	name   string
	writer messageWriter
	config Config
	encode func(*core.Encounter) ([]byte, error)
	ctype  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 3
	Encoding     string        `mapstructure:"encoding"`      // json|cbor, default json
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{name: "kafka"}
}

// Name returns the plugin name.
func (r *KafkaReporter) Name() string {
	return r.name
}

// Init parses the configuration and creates the writer. No connection is
// made until the first message is written.
func (r *KafkaReporter) Init(config map[string]any) error {
	cfg, err := parseConfig(config)
	if err != nil {
		return err
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return err
	}

	switch cfg.Encoding {
	case "json":
		r.encode = func(enc *core.Encounter) ([]byte, error) { return json.Marshal(enc) }
		r.ctype = "application/json"
	case "cbor":
		em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
		if err != nil {
			return err
		}
		r.encode = func(enc *core.Encounter) ([]byte, error) { return em.Marshal(enc) }
		r.ctype = "application/cbor"
	default:
		return fmt.Errorf("invalid encoding: %s (must be json/cbor)", cfg.Encoding)
	}

	r.config = cfg
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // same peer, same partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
	}
	return nil
}

func parseConfig(config map[string]any) (Config, error) {
	if config == nil {
		return Config{}, errors.New("kafka reporter requires configuration")
	}
	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
		Encoding:     defaultEncoding,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(config); err != nil {
		return Config{}, fmt.Errorf("invalid kafka config: %w", err)
	}

	if len(cfg.Brokers) == 0 {
		return Config{}, errors.New("brokers is required")
	}
	if cfg.Topic == "" {
		return Config{}, errors.New("topic is required")
	}
	if cfg.BatchSize <= 0 || cfg.BatchTimeout <= 0 || cfg.MaxAttempts <= 0 {
		return Config{}, errors.New("batch_size, batch_timeout and max_attempts must be positive")
	}
	return cfg, nil
}

func compressionCodec(name string) (compress.Compression, error) {
	switch name {
	case "none", "":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return 0, fmt.Errorf("invalid compression type: %s", name)
	}
}

// Start starts the reporter.
func (r *KafkaReporter) Start(ctx context.Context) error {
	slog.Info("kafka reporter started",
		"brokers", r.config.Brokers,
		"topic", r.config.Topic,
		"batch_size", r.config.BatchSize,
		"batch_timeout", r.config.BatchTimeout,
		"compression", r.config.Compression,
		"encoding", r.config.Encoding,
	)
	return nil
}

// Stop flushes pending messages and closes the writer.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}
	slog.Info("kafka reporter stopped",
		"total_reported", r.reportedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return nil
}

// Report publishes one encounter keyed by the peer identity key.
func (r *KafkaReporter) Report(ctx context.Context, enc *core.Encounter) error {
	if enc == nil {
		return errors.New("nil encounter")
	}
	msg, err := r.message(enc)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize encounter failed: %w", err)
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *KafkaReporter) message(enc *core.Encounter) (kafka.Message, error) {
	value, err := r.encode(enc)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(enc.PeerKey),
		Value: value,
		Time:  enc.Timestamp,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(enc.SessionID)},
			{Key: "peer_mac", Value: []byte(enc.PeerMAC)},
			{Key: "content-type", Value: []byte(r.ctype)},
		},
	}, nil
}

// Flush is a no-op: WriteMessages is synchronous and returns after the
// batch containing the message has been written.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return nil
}
