package scan

import (
	"context"
	"errors"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/metrics"
)

// Handler receives every encounter the scanner surfaces.
type Handler interface {
	HandleEncounter(ctx context.Context, enc *core.Encounter) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, enc *core.Encounter) error

// HandleEncounter calls f.
func (f HandlerFunc) HandleEncounter(ctx context.Context, enc *core.Encounter) error {
	return f(ctx, enc)
}

// Handlers fans an encounter out to each handler in order. Every handler
// runs; the errors are joined.
type Handlers []Handler

// HandleEncounter implements Handler.
func (hs Handlers) HandleEncounter(ctx context.Context, enc *core.Encounter) error {
	var errs []error
	for _, h := range hs {
		if err := h.HandleEncounter(ctx, enc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Named counts failures of h under name in the handler error metric.
func Named(name string, h Handler) Handler {
	return &namedHandler{name: name, next: h}
}

type namedHandler struct {
	name string
	next Handler
}

func (n *namedHandler) HandleEncounter(ctx context.Context, enc *core.Encounter) error {
	err := n.next.HandleEncounter(ctx, enc)
	if err != nil {
		metrics.HandlerErrorsTotal.WithLabelValues(n.name).Inc()
	}
	return err
}
