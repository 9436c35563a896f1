// Package command serves control commands to a running scanner over a Unix
// socket and, optionally, a Kafka topic.
package command

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/history"
	"firestige.xyz/streetpass/internal/scan"
)

// Controller is the running scanner as seen by the command channels.
type Controller interface {
	Stats() scan.Stats
	SessionID() string
	LocalFilter() *cec.ModuleFilter
	Reload() error
	Shutdown()
}

// PeerStore looks up peers in the encounter history.
type PeerStore interface {
	Peer(key string) (*history.PeerRecord, error)
}

// CommandHandler dispatches control commands to the controller.
type CommandHandler struct {
	ctl       Controller
	peers     PeerStore // nil when history is disabled
	startTime time.Time
}

// NewCommandHandler creates a handler. peers may be nil.
func NewCommandHandler(ctl Controller, peers PeerStore) *CommandHandler {
	return &CommandHandler{ctl: ctl, peers: peers, startTime: time.Now()}
}

// Command is one control request.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response answers a Command.
type Response struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is a failed command. It is also returned as an error by UDSClient.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
	ErrCodeNotFound       = -32004 // Peer not in history
)

// Methods
const (
	MethodStatus   = "daemon_status"
	MethodStats    = "daemon_stats"
	MethodReload   = "config_reload"
	MethodShutdown = "daemon_shutdown"
	MethodMatch    = "filter_match"
	MethodPeer     = "peer_lookup"
)

// Status is the result of daemon_status.
type Status struct {
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Filter    string `json:"filter"`
	History   bool   `json:"history"`
}

// MatchParams asks whether a peer filter matches the local one.
type MatchParams struct {
	Filter string `json:"filter"` // hex
}

// MatchResult is the result of filter_match.
type MatchResult struct {
	Key     string `json:"key"`
	Matches bool   `json:"matches"`
}

// PeerParams names a peer by identity key.
type PeerParams struct {
	Key string `json:"key"`
}

// Handle processes a command and returns its response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case MethodStatus:
		return h.handleStatus(cmd)
	case MethodStats:
		return Response{ID: cmd.ID, Result: h.ctl.Stats()}
	case MethodReload:
		return h.handleReload(cmd)
	case MethodShutdown:
		return h.handleShutdown(cmd)
	case MethodMatch:
		return h.handleMatch(cmd)
	case MethodPeer:
		return h.handlePeer(cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, "method %q not found", cmd.Method)
	}
}

func errorResponse(id string, code int, format string, args ...any) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}}
}

func (h *CommandHandler) handleStatus(cmd Command) Response {
	local := h.ctl.LocalFilter()
	st := Status{
		Version:   core.Version,
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
		SessionID: h.ctl.SessionID(),
		History:   h.peers != nil,
	}
	if local != nil {
		st.Key = local.Key().String()
		st.Filter = hex.EncodeToString(local.Bytes())
	}
	return Response{ID: cmd.ID, Result: st}
}

func (h *CommandHandler) handleReload(cmd Command) Response {
	if err := h.ctl.Reload(); err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "reload config failed: %v", err)
	}
	return Response{ID: cmd.ID, Result: map[string]any{"status": "reloaded"}}
}

func (h *CommandHandler) handleShutdown(cmd Command) Response {
	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	// The response goes out before the scanner winds down.
	go h.ctl.Shutdown()
	return Response{ID: cmd.ID, Result: map[string]any{"status": "shutting_down"}}
}

func (h *CommandHandler) handleMatch(cmd Command) Response {
	var params MatchParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid params: %v", err)
	}
	var raw config.HexBytes
	if err := raw.UnmarshalText([]byte(params.Filter)); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid filter: %v", err)
	}
	peer, err := cec.Parse(raw)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid filter: %v", err)
	}
	local := h.ctl.LocalFilter()
	return Response{ID: cmd.ID, Result: MatchResult{
		Key:     peer.Key().String(),
		Matches: local != nil && local.Matches(peer),
	}}
}

func (h *CommandHandler) handlePeer(cmd Command) Response {
	if h.peers == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "history is disabled")
	}
	var params PeerParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid params: %v", err)
	}
	key, err := cec.ParseKey(params.Key)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "invalid key: %v", err)
	}
	rec, err := h.peers.Peer(key.String())
	if errors.Is(err, history.ErrNotFound) {
		return errorResponse(cmd.ID, ErrCodeNotFound, "peer %s never seen", key)
	}
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "peer lookup failed: %v", err)
	}
	return Response{ID: cmd.ID, Result: rec}
}
