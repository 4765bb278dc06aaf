package rpc

import (
	"encoding/json"
	"fmt"
)

// Built-in operations the server answers itself. Any other Tool value
// is dispatched through the tool registry.
const (
	OpPing      = "ping"
	OpStatus    = "status"
	OpHealth    = "health"
	OpMetrics   = "metrics"
	OpListTools = "list_tools"
	OpShutdown  = "shutdown"
)

// ServerVersion is reported by ping/status/health. Overridden by the
// daemon at startup from the CLI version.
var ServerVersion = "0.0.0"

// ClientVersion is sent with every request for compatibility checks.
// Overridden at startup from the CLI version.
var ClientVersion = "0.0.0"

// Request is one newline-delimited JSON message from client to server.
type Request struct {
	Tool          string          `json:"tool"`
	Input         json.RawMessage `json:"input,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	TimeoutMs     int             `json:"timeout_ms,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// ErrorDetail describes a transport-level failure: a request the
// server could not hand to a tool at all. Tool-level failures ride
// inside Result with their own error_code.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is one newline-delimited JSON message from server to
// client. For tool dispatch, Result carries the full tool envelope and
// Success mirrors the envelope's own success flag.
type Response struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorDetail    `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Transport error codes for ErrorDetail.
const (
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeUnavailable = "UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

func errorResponse(code, format string, args ...any) Response {
	return Response{
		Success: false,
		Error:   &ErrorDetail{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

func resultResponse(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(ErrCodeInternal, "marshal result: %v", err)
	}
	return Response{Success: true, Result: data}
}

// PingResponse answers the ping operation.
type PingResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// StatusResponse reports daemon metadata.
type StatusResponse struct {
	Version          string  `json:"version"`
	SocketPath       string  `json:"socket_path"`
	PID              int     `json:"pid"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	LastActivityTime string  `json:"last_activity_time"`
	ActiveBranch     string  `json:"active_branch"`
	Namespace        string  `json:"namespace"`
	ToolCount        int     `json:"tool_count"`
}

// HealthResponse reports liveness of the daemon and its substrates.
type HealthResponse struct {
	Status         string  `json:"status"` // "healthy", "degraded", "unhealthy"
	Version        string  `json:"version"`
	Uptime         float64 `json:"uptime_seconds"`
	DBResponseTime float64 `json:"db_response_ms"`
	SQL            bool    `json:"sql"`
	VectorIndex    bool    `json:"vector_index"`
	ActiveConns    int32   `json:"active_connections"`
	MaxConns       int     `json:"max_connections"`
	MemoryAllocMB  uint64  `json:"memory_alloc_mb"`
	Error          string  `json:"error,omitempty"`
}

// ToolInfo describes one registered tool for list_tools.
type ToolInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	MemoryLinked bool   `json:"memory_linked,omitempty"`
}

// ListToolsResponse answers the list_tools operation.
type ListToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
	Count int        `json:"count"`
}
