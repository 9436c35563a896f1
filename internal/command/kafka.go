package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/streetpass/internal/config"
)

// KafkaCommand is the wire format of a remote command.
//
//	{
//	  "version":    "v1",
//	  "target":     "68c727390e2fbb04",
//	  "command":    "config_reload",
//	  "timestamp":  "2024-01-15T10:30:00Z",
//	  "request_id": "req-abc-123",
//	  "payload":    { ... }
//	}
type KafkaCommand struct {
	Version   string          `json:"version"`
	Target    string          `json:"target"` // hostname, device key, "*" or empty for every scanner
	Command   string          `json:"command"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCommandConsumer consumes remote commands and dispatches them to the
// handler. Commands for other scanners or older than the TTL are skipped.
type KafkaCommandConsumer struct {
	cfg     config.CommandKafkaConfig
	targets map[string]bool
	reader  messageReader
	handler *CommandHandler
	ttl     time.Duration
	retry   time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewKafkaCommandConsumer creates a consumer answering to any of targets.
func NewKafkaCommandConsumer(cfg config.CommandKafkaConfig, ttl time.Duration, targets []string, handler *CommandHandler) (*KafkaCommandConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group_id is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})
	return newKafkaCommandConsumer(cfg, reader, ttl, targets, handler), nil
}

func newKafkaCommandConsumer(cfg config.CommandKafkaConfig, r messageReader, ttl time.Duration, targets []string, handler *CommandHandler) *KafkaCommandConsumer {
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t != "" {
			set[t] = true
		}
	}
	return &KafkaCommandConsumer{
		cfg:     cfg,
		targets: set,
		reader:  r,
		handler: handler,
		ttl:     ttl,
		retry:   5 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *KafkaCommandConsumer) Run(ctx context.Context) error {
	slog.Info("kafka command consumer started",
		"brokers", c.cfg.Brokers,
		"topic", c.cfg.Topic,
		"group_id", c.cfg.GroupID,
		"ttl", c.ttl,
	)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("kafka command consumer stopped", "reason", ctx.Err())
				return nil
			}
			slog.Error("failed to fetch kafka command", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retry):
				continue
			}
		}

		if err := c.processMessage(ctx, msg); err != nil {
			slog.Error("failed to process command",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			slog.Error("failed to commit command", "error", err)
		}
	}
}

func (c *KafkaCommandConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var kCmd KafkaCommand
	if err := json.Unmarshal(msg.Value, &kCmd); err != nil {
		return fmt.Errorf("failed to parse kafka command: %w", err)
	}

	if kCmd.Target != "*" && kCmd.Target != "" && !c.targets[kCmd.Target] {
		slog.Debug("skipping command for another scanner", "target", kCmd.Target, "request_id", kCmd.RequestID)
		return nil
	}
	if !kCmd.Timestamp.IsZero() && time.Since(kCmd.Timestamp) > c.ttl {
		slog.Warn("skipping stale command",
			"command", kCmd.Command,
			"request_id", kCmd.RequestID,
			"age", time.Since(kCmd.Timestamp),
			"ttl", c.ttl,
		)
		return nil
	}

	resp := c.handler.Handle(ctx, Command{Method: kCmd.Command, Params: kCmd.Payload, ID: kCmd.RequestID})
	if resp.Error != nil {
		return fmt.Errorf("command %s failed: %w", kCmd.Command, resp.Error)
	}
	slog.Info("remote command executed", "method", kCmd.Command, "request_id", kCmd.RequestID)
	return nil
}

// Stop closes the reader. It is safe to call more than once.
func (c *KafkaCommandConsumer) Stop() error {
	c.closeOnce.Do(func() {
		if err := c.reader.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close kafka reader: %w", err)
		}
	})
	return c.closeErr
}
