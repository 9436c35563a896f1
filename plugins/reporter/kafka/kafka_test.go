package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/streetpass/internal/core"
)

func TestKafkaReporter_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "missing brokers", config: map[string]any{"topic": "test"}, wantErr: true},
		{name: "missing topic", config: map[string]any{"brokers": []any{"localhost:9092"}}, wantErr: true},
		{
			name: "valid minimal config",
			config: map[string]any{
				"brokers": []any{"localhost:9092"},
				"topic":   "encounters",
			},
		},
		{
			name: "valid full config",
			config: map[string]any{
				"brokers":       []any{"broker1:9092", "broker2:9092"},
				"topic":         "encounters",
				"batch_size":    float64(200),
				"batch_timeout": "200ms",
				"compression":   "gzip",
				"max_attempts":  5,
				"encoding":      "cbor",
			},
		},
		{
			name: "comma separated brokers",
			config: map[string]any{
				"brokers": "broker1:9092,broker2:9092",
				"topic":   "encounters",
			},
		},
		{
			name: "invalid compression",
			config: map[string]any{
				"brokers":     []any{"localhost:9092"},
				"topic":       "encounters",
				"compression": "brotli",
			},
			wantErr: true,
		},
		{
			name: "invalid batch_timeout",
			config: map[string]any{
				"brokers":       []any{"localhost:9092"},
				"topic":         "encounters",
				"batch_timeout": "soon",
			},
			wantErr: true,
		},
		{
			name: "invalid encoding",
			config: map[string]any{
				"brokers":  []any{"localhost:9092"},
				"topic":    "encounters",
				"encoding": "xml",
			},
			wantErr: true,
		},
		{
			name: "zero batch size",
			config: map[string]any{
				"brokers":    []any{"localhost:9092"},
				"topic":      "encounters",
				"batch_size": 0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewKafkaReporter().(*KafkaReporter)
			err := r.Init(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if r.writer == nil {
					t.Error("writer should be created")
				}
				_ = r.writer.Close()
			}
		})
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(map[string]any{
		"brokers": []any{"localhost:9092"},
		"topic":   "encounters",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != defaultBatchSize || cfg.BatchTimeout != defaultBatchTimeout ||
		cfg.Compression != defaultCompression || cfg.MaxAttempts != defaultMaxAttempts ||
		cfg.Encoding != defaultEncoding {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	cfg, err = parseConfig(map[string]any{
		"brokers":       "a:9092,b:9092",
		"topic":         "encounters",
		"batch_timeout": "1s",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "b:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.BatchTimeout != time.Second {
		t.Errorf("batch_timeout = %v", cfg.BatchTimeout)
	}
}

func TestCompressionCodec(t *testing.T) {
	tests := map[string]compress.Compression{
		"":       compress.None,
		"none":   compress.None,
		"gzip":   compress.Gzip,
		"snappy": compress.Snappy,
		"lz4":    compress.Lz4,
		"zstd":   compress.Zstd,
	}
	for name, want := range tests {
		got, err := compressionCodec(name)
		if err != nil || got != want {
			t.Errorf("compressionCodec(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEncounter() *core.Encounter {
	return &core.Encounter{
		ID:        "2Y3bT0PpKQk2Q0cK7cR9dMyb2ZG",
		SessionID: "session-1",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		PeerMAC:   "02:11:22:33:44:55",
		PeerKey:   "68c727390e2fbb04",
		Filter:    []byte{0xF0, 0x08, 0x68, 0xC7, 0x27, 0x39, 0x0E, 0x2F, 0xBB, 0x04},
	}
}

func newTestReporter(t *testing.T, encoding string) (*KafkaReporter, *fakeWriter) {
	t.Helper()
	r := NewKafkaReporter().(*KafkaReporter)
	if err := r.Init(map[string]any{"brokers": []any{"localhost:9092"}, "topic": "encounters", "encoding": encoding}); err != nil {
		t.Fatal(err)
	}
	_ = r.writer.Close()
	w := &fakeWriter{}
	r.writer = w
	return r, w
}

func TestKafkaReporter_ReportJSON(t *testing.T) {
	r, w := newTestReporter(t, "json")
	enc := testEncounter()

	if err := r.Report(context.Background(), enc); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != enc.PeerKey {
		t.Errorf("key = %q, want %q", msg.Key, enc.PeerKey)
	}
	if !msg.Time.Equal(enc.Timestamp) {
		t.Errorf("time = %v", msg.Time)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["session_id"] != "session-1" || headers["peer_mac"] != enc.PeerMAC || headers["content-type"] != "application/json" {
		t.Errorf("headers = %v", headers)
	}

	var got core.Encounter
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got.ID != enc.ID || got.PeerKey != enc.PeerKey {
		t.Errorf("decoded = %+v", got)
	}
	if r.reportedCount.Load() != 1 {
		t.Errorf("reportedCount = %d", r.reportedCount.Load())
	}
}

func TestKafkaReporter_ReportCBOR(t *testing.T) {
	r, w := newTestReporter(t, "cbor")
	enc := testEncounter()

	if err := r.Report(context.Background(), enc); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	var got core.Encounter
	if err := cbor.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("value is not CBOR: %v", err)
	}
	if got.PeerKey != enc.PeerKey || !got.Timestamp.Equal(enc.Timestamp) {
		t.Errorf("decoded = %+v", got)
	}
}

func TestKafkaReporter_ReportErrors(t *testing.T) {
	r, w := newTestReporter(t, "json")
	if err := r.Report(context.Background(), nil); err == nil {
		t.Error("expected error for nil encounter")
	}

	w.err = errors.New("leader not available")
	if err := r.Report(context.Background(), testEncounter()); err == nil {
		t.Error("expected write error")
	}
	if r.errorCount.Load() != 1 {
		t.Errorf("errorCount = %d, want 1", r.errorCount.Load())
	}
}

func TestKafkaReporter_StopClosesWriter(t *testing.T) {
	r, w := newTestReporter(t, "json")
	if err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer should be closed")
	}
}
