package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"firestige.xyz/streetpass/internal/history"
	"firestige.xyz/streetpass/internal/scan"
)

// UDSClient is a JSON-RPC client for the control socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a client. A zero timeout means 10 seconds.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{socketPath: socketPath, timeout: timeout}
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// Call sends one command and returns its raw result. A command that failed
// on the daemon side is returned as *ErrorInfo.
func (c *UDSClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		if paramsJSON, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
	}
	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	if err := json.NewEncoder(conn).Encode(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, errors.New("connection closed without response")
	}
	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if got := fmt.Sprintf("%v", resp.ID); got != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, got)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *UDSClient) callInto(ctx context.Context, method string, params, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// Status queries daemon_status.
func (c *UDSClient) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.callInto(ctx, MethodStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Stats queries daemon_stats.
func (c *UDSClient) Stats(ctx context.Context) (*scan.Stats, error) {
	var st scan.Stats
	if err := c.callInto(ctx, MethodStats, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Reload asks the daemon to reload its configuration.
func (c *UDSClient) Reload(ctx context.Context) error {
	_, err := c.Call(ctx, MethodReload, nil)
	return err
}

// Shutdown asks the daemon to stop scanning and exit.
func (c *UDSClient) Shutdown(ctx context.Context) error {
	_, err := c.Call(ctx, MethodShutdown, nil)
	return err
}

// Match asks whether filterHex matches the daemon's local filter.
func (c *UDSClient) Match(ctx context.Context, filterHex string) (*MatchResult, error) {
	var res MatchResult
	if err := c.callInto(ctx, MethodMatch, MatchParams{Filter: filterHex}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Peer looks up one peer in the daemon's history.
func (c *UDSClient) Peer(ctx context.Context, key string) (*history.PeerRecord, error) {
	var rec history.PeerRecord
	if err := c.callInto(ctx, MethodPeer, PeerParams{Key: key}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
