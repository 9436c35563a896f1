package scan

import (
	"context"
	"log/slog"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/metrics"
	"firestige.xyz/streetpass/pkg/plugin"
)

const defaultReporterQueue = 1024

// ReporterWrapper decouples a reporter from the scan loop. Encounters are
// queued and delivered in order by one goroutine:
//
//	Scanner → ReporterWrapper.HandleEncounter → deliverLoop → Reporter.Report
//
// A full queue drops the encounter rather than stalling capture.
type ReporterWrapper struct {
	reporter plugin.Reporter
	queue    chan *core.Encounter
	done     chan struct{}
}

// NewReporterWrapper wraps r with a queue of size capacity (default 1024).
func NewReporterWrapper(r plugin.Reporter, capacity int) *ReporterWrapper {
	if capacity <= 0 {
		capacity = defaultReporterQueue
	}
	return &ReporterWrapper{
		reporter: r,
		queue:    make(chan *core.Encounter, capacity),
		done:     make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It does not start the reporter.
func (w *ReporterWrapper) Start(ctx context.Context) {
	go w.deliverLoop(ctx)
}

// HandleEncounter enqueues enc without blocking.
func (w *ReporterWrapper) HandleEncounter(_ context.Context, enc *core.Encounter) error {
	select {
	case w.queue <- enc:
	default:
		metrics.ReporterErrorsTotal.WithLabelValues(w.reporter.Name(), "dropped").Inc()
		slog.Warn("reporter queue full, encounter dropped", "reporter", w.reporter.Name(), "id", enc.ID)
	}
	return nil
}

// Close stops accepting encounters, waits for the queue to drain and flushes
// the reporter.
func (w *ReporterWrapper) Close(ctx context.Context) error {
	close(w.queue)
	<-w.done
	if err := w.reporter.Flush(ctx); err != nil {
		metrics.ReporterErrorsTotal.WithLabelValues(w.reporter.Name(), "flush").Inc()
		return err
	}
	return nil
}

func (w *ReporterWrapper) deliverLoop(ctx context.Context) {
	defer close(w.done)
	// Delivery keeps going after ctx is cancelled so Close can drain.
	ctx = context.WithoutCancel(ctx)
	for enc := range w.queue {
		if err := w.reporter.Report(ctx, enc); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(w.reporter.Name(), "report").Inc()
			slog.Warn("reporter failed", "reporter", w.reporter.Name(), "id", enc.ID, "error", err)
		}
	}
}
