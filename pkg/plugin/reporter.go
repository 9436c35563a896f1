package plugin

import (
	"context"

	"firestige.xyz/streetpass/internal/core"
)

// Reporter sends encounters to an external system.
type Reporter interface {
	Plugin
	Report(ctx context.Context, enc *core.Encounter) error
	Flush(ctx context.Context) error
}

// ReporterFactory creates an uninitialized reporter.
type ReporterFactory func() Reporter
