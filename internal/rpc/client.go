package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cognidao/membank/internal/debug"
)

// rpcDebugEnabled reports whether MEMBANK_DEBUG_RPC tracing is on.
func rpcDebugEnabled() bool {
	val := os.Getenv("MEMBANK_DEBUG_RPC")
	return val == "1" || val == "true"
}

func rpcDebugLog(format string, args ...any) {
	if rpcDebugEnabled() {
		fmt.Fprintf(os.Stderr, "[RPC DEBUG] "+format+"\n", args...)
	}
}

// Client talks to the daemon over its socket. Not safe for concurrent
// use; the CLI issues one request at a time.
type Client struct {
	conn       net.Conn
	socketPath string
	timeout    time.Duration
	actor      string
}

// TryConnect attempts to reach a daemon on the socket. It returns
// (nil, nil) when no healthy daemon is running, so callers can fall
// back to direct store access.
func TryConnect(socketPath string) (*Client, error) {
	return TryConnectWithTimeout(socketPath, 200*time.Millisecond)
}

// TryConnectWithTimeout is TryConnect with an explicit dial timeout.
func TryConnectWithTimeout(socketPath string, dialTimeout time.Duration) (*Client, error) {
	rpcDebugLog("attempting connection to socket: %s", socketPath)

	if !endpointExists(socketPath) {
		rpcDebugLog("socket missing (no daemon running)")
		return nil, nil
	}

	if dialTimeout <= 0 {
		dialTimeout = 200 * time.Millisecond
	}

	dialStart := time.Now()
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		debug.Logf("rpc: dial failed: %v\n", err)
		rpcDebugLog("dial failed after %v: %v", time.Since(dialStart), err)
		// Stale socket: the file exists but nothing answers.
		_ = os.Remove(socketPath)
		return nil, nil
	}
	rpcDebugLog("dial succeeded in %v", time.Since(dialStart))

	client := &Client{
		conn:       conn,
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}

	health, err := client.Health()
	if err != nil {
		debug.Logf("rpc: health check failed: %v\n", err)
		_ = conn.Close()
		return nil, nil
	}
	if health.Status == "unhealthy" {
		debug.Logf("rpc: daemon unhealthy: %s\n", health.Error)
		_ = conn.Close()
		return nil, nil
	}

	rpcDebugLog("connected (status: %s, uptime: %.1fs)", health.Status, health.Uptime)
	return client, nil
}

// Connect dials the daemon and fails when it is not reachable. Used
// where a daemon is required rather than optional.
func Connect(socketPath string, dialTimeout time.Duration) (*Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return &Client{
		conn:       conn,
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SetActor sets the actor recorded with every request.
func (c *Client) SetActor(actor string) {
	c.actor = actor
}

// Execute sends one request and reads one response. The returned
// error covers transport problems and built-in operation failures;
// tool-level failures come back as resp.Success=false with the
// envelope in resp.Result.
func (c *Client) Execute(tool string, input any) (*Response, error) {
	var inputJSON json.RawMessage
	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("marshal input: %w", err)
		}
		inputJSON = data
	}

	req := Request{
		Tool:          tool,
		Input:         inputJSON,
		Actor:         c.actor,
		ClientVersion: ClientVersion,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	rpcDebugLog("-> %s %s", tool, reqJSON)
	start := time.Now()

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush request: %w", err)
	}

	reader := bufio.NewReader(c.conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	rpcDebugLog("<- %s (%v)", tool, time.Since(start))

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.Error != nil {
		return &resp, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// CallTool invokes a registered tool and returns its raw envelope.
func (c *Client) CallTool(name string, input any) (json.RawMessage, error) {
	resp, err := c.Execute(name, input)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Ping verifies the daemon is alive.
func (c *Client) Ping() error {
	resp, err := c.Execute(OpPing, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ping failed")
	}
	return nil
}

// Status retrieves daemon status metadata.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Execute(OpStatus, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status response: %w", err)
	}
	return &status, nil
}

// Health retrieves the daemon health report.
func (c *Client) Health() (*HealthResponse, error) {
	resp, err := c.Execute(OpHealth, nil)
	if err != nil {
		return nil, err
	}
	var health HealthResponse
	if err := json.Unmarshal(resp.Result, &health); err != nil {
		return nil, fmt.Errorf("unmarshal health response: %w", err)
	}
	return &health, nil
}

// Metrics retrieves the daemon request metrics.
func (c *Client) Metrics() (*MetricsSnapshot, error) {
	resp, err := c.Execute(OpMetrics, nil)
	if err != nil {
		return nil, err
	}
	var snap MetricsSnapshot
	if err := json.Unmarshal(resp.Result, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal metrics response: %w", err)
	}
	return &snap, nil
}

// ListTools retrieves the registered tool descriptors.
func (c *Client) ListTools() (*ListToolsResponse, error) {
	resp, err := c.Execute(OpListTools, nil)
	if err != nil {
		return nil, err
	}
	var list ListToolsResponse
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return nil, fmt.Errorf("unmarshal list_tools response: %w", err)
	}
	return &list, nil
}

// Shutdown asks the daemon to stop gracefully.
func (c *Client) Shutdown() error {
	_, err := c.Execute(OpShutdown, nil)
	return err
}
