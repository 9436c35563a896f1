package cmd

import (
	"context"

	"firestige.xyz/streetpass/internal/command"
	"firestige.xyz/streetpass/internal/scan"
)

// ControlClient is the part of command.UDSClient the control commands use.
type ControlClient interface {
	Status(ctx context.Context) (*command.Status, error)
	Stats(ctx context.Context) (*scan.Stats, error)
	Reload(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Match(ctx context.Context, filterHex string) (*command.MatchResult, error)
}

func newControlClient() ControlClient {
	return command.NewUDSClient(socketPath, 0)
}
