package plugin

import (
	"context"
	"errors"
	"testing"

	"firestige.xyz/streetpass/internal/core"
)

type mockReporter struct {
	name     string
	initErr  error
	cfg      map[string]any
	reported []*core.Encounter
}

func (m *mockReporter) Name() string { return m.name }
func (m *mockReporter) Init(cfg map[string]any) error { m.cfg = cfg; return m.initErr }
func (m *mockReporter) Start(ctx context.Context) error { return nil }
func (m *mockReporter) Stop(ctx context.Context) error { return nil }
func (m *mockReporter) Flush(ctx context.Context) error { return nil }
func (m *mockReporter) Report(ctx context.Context, enc *core.Encounter) error {
	m.reported = append(m.reported, enc)
	return nil
}

func TestRegisterAndGetReporter(t *testing.T) {
	reporterReg.Reset()

	RegisterReporter("test_rep", func() Reporter { return &mockReporter{name: "test_rep"} })

	factory, err := GetReporterFactory("test_rep")
	if err != nil {
		t.Fatalf("GetReporterFactory failed: %v", err)
	}
	if got := factory().Name(); got != "test_rep" {
		t.Errorf("Expected name 'test_rep', got %s", got)
	}
}

func TestGetReporterNotFound(t *testing.T) {
	reporterReg.Reset()

	_, err := GetReporterFactory("missing")
	if !errors.Is(err, core.ErrReporterNotFound) {
		t.Errorf("Expected ErrReporterNotFound, got %v", err)
	}
	if _, err := NewReporter("missing", nil); !errors.Is(err, core.ErrReporterNotFound) {
		t.Errorf("Expected ErrReporterNotFound from NewReporter, got %v", err)
	}
}

func TestNewReporterInitializes(t *testing.T) {
	reporterReg.Reset()

	var created *mockReporter
	RegisterReporter("test_rep", func() Reporter {
		created = &mockReporter{name: "test_rep"}
		return created
	})

	cfg := map[string]any{"format": "json"}
	r, err := NewReporter("test_rep", cfg)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}
	if r != created {
		t.Error("NewReporter should return the factory's instance")
	}
	if created.cfg["format"] != "json" {
		t.Errorf("Init did not receive config, got %v", created.cfg)
	}
}

func TestNewReporterInitFailure(t *testing.T) {
	reporterReg.Reset()

	boom := errors.New("bad config")
	RegisterReporter("broken", func() Reporter { return &mockReporter{name: "broken", initErr: boom} })

	_, err := NewReporter("broken", nil)
	if !errors.Is(err, core.ErrPluginInitFailed) {
		t.Errorf("Expected ErrPluginInitFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped init error, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reporterReg.Reset()
	RegisterReporter("dup", func() Reporter { return &mockReporter{name: "dup"} })

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	RegisterReporter("dup", func() Reporter { return &mockReporter{name: "dup"} })
}

func TestReporterNamesSorted(t *testing.T) {
	reporterReg.Reset()
	for _, name := range []string{"pcap", "console", "kafka"} {
		n := name
		RegisterReporter(n, func() Reporter { return &mockReporter{name: n} })
	}

	names := ReporterNames()
	want := []string{"console", "kafka", "pcap"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, names)
		}
	}
}
