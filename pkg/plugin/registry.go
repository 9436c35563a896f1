package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/streetpass/internal/core"
)

// registry is a name → factory map safe for concurrent use.
type registry[F any] struct {
	mu        sync.RWMutex
	factories map[string]F
}

func newRegistry[F any]() *registry[F] {
	return &registry[F]{factories: make(map[string]F)}
}

func (r *registry[F]) register(name string, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	r.factories[name] = f
}

func (r *registry[F]) get(name string) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

func (r *registry[F]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset removes every registration. Tests only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var reporterReg = newRegistry[ReporterFactory]()

// RegisterReporter makes a reporter available by name. Registering the same
// name twice panics.
func RegisterReporter(name string, f ReporterFactory) {
	reporterReg.register(name, f)
}

// GetReporterFactory returns the factory registered under name.
func GetReporterFactory(name string) (ReporterFactory, error) {
	f, ok := reporterReg.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrReporterNotFound, name)
	}
	return f, nil
}

// NewReporter creates and initializes the reporter registered under name.
func NewReporter(name string, cfg map[string]any) (Reporter, error) {
	f, err := GetReporterFactory(name)
	if err != nil {
		return nil, err
	}
	r := f()
	if err := r.Init(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrPluginInitFailed, name, err)
	}
	return r, nil
}

// ReporterNames lists the registered reporters in name order.
func ReporterNames() []string {
	return reporterReg.names()
}
