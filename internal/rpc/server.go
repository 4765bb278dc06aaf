package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	rtdebug "runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/telemetry"
	"github.com/cognidao/membank/internal/tools"
)

// Server is the daemon-side endpoint: a Unix-socket listener speaking
// newline-delimited JSON, dispatching every request to the tool
// registry (plus a few built-in operations it answers itself).
type Server struct {
	socketPath string
	bank       *memorybank.Bank
	exec       *tools.Executor

	listener net.Listener
	mu       sync.RWMutex
	shutdown bool
	stopOnce sync.Once

	shutdownChan chan struct{}
	doneChan     chan struct{} // closed when Start() cleanup is complete
	readyChan    chan struct{} // closed when the listener is accepting

	startTime        time.Time
	lastActivityTime atomic.Value // time.Time
	metrics          *Metrics

	maxConns      int
	activeConns   int32
	connSemaphore chan struct{}

	requestTimeout  time.Duration
	pendingShutdown atomic.Bool
}

// NewServer creates a server over the given bank. Connection and
// timeout limits come from MEMBANK_DAEMON_MAX_CONNS and
// MEMBANK_DAEMON_REQUEST_TIMEOUT when set.
func NewServer(socketPath string, bank *memorybank.Bank) *Server {
	maxConns := 100
	if env := os.Getenv("MEMBANK_DAEMON_MAX_CONNS"); env != "" {
		var conns int
		if _, err := fmt.Sscanf(env, "%d", &conns); err == nil && conns > 0 {
			maxConns = conns
		}
	}

	requestTimeout := 60 * time.Second
	if env := os.Getenv("MEMBANK_DAEMON_REQUEST_TIMEOUT"); env != "" {
		if timeout, err := time.ParseDuration(env); err == nil && timeout > 0 {
			requestTimeout = timeout
		}
	}

	metrics := NewMetrics()
	if env := os.Getenv("MEMBANK_SLOW_QUERY_THRESHOLD"); env != "" {
		if threshold, err := time.ParseDuration(env); err == nil && threshold >= 0 {
			metrics.SetSlowQueryThreshold(threshold)
		}
	}
	metrics.SetSlowQueryCallback(func(operation string, latency time.Duration, timestamp time.Time) {
		fmt.Fprintf(os.Stderr, "SLOW REQUEST: tool=%s latency=%s time=%s\n",
			operation, latency.Round(time.Millisecond), timestamp.Format(time.RFC3339))
	})

	s := &Server{
		socketPath:     socketPath,
		bank:           bank,
		exec:           tools.NewExecutor(tools.Builtin(), bank),
		shutdownChan:   make(chan struct{}),
		doneChan:       make(chan struct{}),
		readyChan:      make(chan struct{}),
		startTime:      time.Now(),
		metrics:        metrics,
		maxConns:       maxConns,
		connSemaphore:  make(chan struct{}, maxConns),
		requestTimeout: requestTimeout,
	}
	s.lastActivityTime.Store(time.Now())
	return s
}

// isPermissionUnsupportedError reports whether the filesystem refused
// a chmod on the socket (EINVAL on virtio-fs and friends).
func isPermissionUnsupportedError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTSUP
	}
	return false
}

// Start listens on the socket and serves connections until Stop. It
// blocks; run it in a goroutine and wait on WaitReady before dialing.
func (s *Server) Start(_ context.Context) error {
	if err := s.ensureSocketDir(); err != nil {
		return fmt.Errorf("ensure socket directory: %w", err)
	}
	if err := s.removeOldSocket(); err != nil {
		return fmt.Errorf("remove old socket: %w", err)
	}

	listener, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	// 0600: the socket carries unauthenticated full access to the
	// store. Some filesystems cannot chmod sockets; the parent
	// directory permissions still protect it there.
	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.socketPath, 0o600); err != nil {
			if !isPermissionUnsupportedError(err) {
				_ = listener.Close()
				return fmt.Errorf("set socket permissions: %w", err)
			}
			fmt.Fprintf(os.Stderr, "membank: warning: could not set socket permissions: %v\n", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	close(s.readyChan)
	go s.handleSignals()

	defer close(s.doneChan)

	for {
		s.mu.RLock()
		listener := s.listener
		s.mu.RUnlock()

		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		select {
		case s.connSemaphore <- struct{}{}:
			s.metrics.RecordConnection()
			go func(c net.Conn) {
				defer func() { <-s.connSemaphore }()
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(c)
			}(conn)
		default:
			s.metrics.RecordRejectedConnection()
			_ = conn.Close()
		}
	}
}

// WaitReady returns a channel closed once the listener is accepting.
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// Metrics returns the server's request metrics collector.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Stop shuts the server down, closes the bank, and removes the socket.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()

		close(s.shutdownChan)

		if s.bank != nil {
			if closeErr := s.bank.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "membank: warning: close bank: %v\n", closeErr)
			}
		}

		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		if listener != nil {
			if closeErr := listener.Close(); closeErr != nil {
				err = fmt.Errorf("close listener: %w", closeErr)
				return
			}
		}

		if removeErr := s.removeOldSocket(); removeErr != nil {
			err = fmt.Errorf("remove socket: %w", removeErr)
		}
	})

	// Wait for the accept loop's cleanup, bounded.
	select {
	case <-s.doneChan:
	case <-time.After(5 * time.Second):
	}

	return err
}

func (s *Server) ensureSocketDir() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Tighten an already-existing directory, best effort.
	_ = os.Chmod(dir, 0o700)
	return nil
}

// removeOldSocket clears a leftover socket file, but only after
// probing it: a dialable socket means another daemon owns it.
func (s *Server) removeOldSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := dialRPC(s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, serverSignals...)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
		_ = s.Stop()
	case <-s.shutdownChan:
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// A panic in one connection must not take the daemon down.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "membank: panic in connection handler: %v\n%s\n", r, rtdebug.Stack())
		}
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := s.writeResponse(writer, errorResponse(ErrCodeBadRequest, "invalid request: %v", err)); werr != nil {
				return
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}

		resp := s.handleRequest(&req)
		if err := s.writeResponse(writer, resp); err != nil {
			return
		}

		// A shutdown request stops the daemon only after its response
		// has reached the client.
		if s.pendingShutdown.Load() {
			go func() {
				if err := s.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "membank: error during shutdown: %v\n", err)
				}
			}()
			return
		}
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}

func (s *Server) handleRequest(req *Request) Response {
	s.lastActivityTime.Store(time.Now())
	debug.Logf("rpc: request tool=%s actor=%s id=%s\n", req.Tool, req.Actor, req.RequestID)

	start := time.Now()
	resp := s.dispatch(req)
	s.metrics.RecordRequest(req.Tool, time.Since(start), !resp.Success)
	telemetry.RecordToolInvocation(context.Background(), req.Tool, resp.Success)

	resp.RequestID = req.RequestID
	return resp
}

func (s *Server) dispatch(req *Request) Response {
	switch req.Tool {
	case "":
		return errorResponse(ErrCodeBadRequest, "tool name is required")
	case OpPing:
		return resultResponse(&PingResponse{Message: "pong", Version: ServerVersion})
	case OpStatus:
		return s.handleStatus()
	case OpHealth:
		return s.handleHealth()
	case OpMetrics:
		return resultResponse(s.metrics.Snapshot())
	case OpListTools:
		return s.handleListTools()
	case OpShutdown:
		return s.handleShutdown()
	}

	ctx, cancel := s.reqCtx(req)
	defer cancel()

	raw := s.exec.ExecuteRaw(ctx, req.Tool, req.Input)
	return Response{Success: envelopeSuccess(raw), Result: raw}
}

// reqCtx builds the per-request context. Clients may shorten the
// server's default timeout but anything beyond it is capped.
func (s *Server) reqCtx(req *Request) (context.Context, context.CancelFunc) {
	timeout := s.requestTimeout
	if req.TimeoutMs > 0 {
		if t := time.Duration(req.TimeoutMs) * time.Millisecond; t < timeout {
			timeout = t
		}
	}
	return context.WithTimeout(context.Background(), timeout)
}

// envelopeSuccess reads the success flag off a tool envelope so the
// transport response mirrors it.
func envelopeSuccess(raw json.RawMessage) bool {
	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Success
}

func (s *Server) handleStatus() Response {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lastActivity, _ := s.lastActivityTime.Load().(time.Time)
	return resultResponse(&StatusResponse{
		Version:          ServerVersion,
		SocketPath:       s.socketPath,
		PID:              os.Getpid(),
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
		LastActivityTime: lastActivity.UTC().Format(time.RFC3339),
		ActiveBranch:     s.bank.CurrentBranch(ctx),
		Namespace:        s.bank.Namespace(),
		ToolCount:        len(s.exec.Registry().Names()),
	})
}

func (s *Server) handleHealth() Response {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbStart := time.Now()
	health := s.bank.HealthCheck(ctx)
	dbLatency := time.Since(dbStart)

	status := "healthy"
	switch {
	case !health.SQL:
		status = "unhealthy"
	case !health.VectorIndex:
		status = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return resultResponse(&HealthResponse{
		Status:         status,
		Version:        ServerVersion,
		Uptime:         time.Since(s.startTime).Seconds(),
		DBResponseTime: float64(dbLatency.Microseconds()) / 1000,
		SQL:            health.SQL,
		VectorIndex:    health.VectorIndex,
		ActiveConns:    atomic.LoadInt32(&s.activeConns),
		MaxConns:       s.maxConns,
		MemoryAllocMB:  memStats.Alloc / 1024 / 1024,
		Error:          health.Detail,
	})
}

func (s *Server) handleListTools() Response {
	registered := s.exec.Registry().Tools()
	infos := make([]ToolInfo, 0, len(registered))
	for _, tool := range registered {
		infos = append(infos, ToolInfo{
			Name:         tool.Name,
			Description:  tool.Description,
			MemoryLinked: tool.MemoryLinked,
		})
	}
	return resultResponse(&ListToolsResponse{Tools: infos, Count: len(infos)})
}

func (s *Server) handleShutdown() Response {
	s.pendingShutdown.Store(true)
	return Response{
		Success: true,
		Result:  json.RawMessage(`{"message":"daemon shutting down"}`),
	}
}
