package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cognidao/membank/internal/testutil/testbank"
)

// startServer boots a daemon over a fresh test bank and returns its
// socket path. The server is stopped on cleanup.
func startServer(t *testing.T) (*Server, string) {
	t.Helper()

	env := testbank.New(t)
	sock := filepath.Join(t.TempDir(), "membank.sock")
	srv := NewServer(sock, env.Bank)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()

	select {
	case <-srv.WaitReady():
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready after 5s")
	}

	t.Cleanup(func() { _ = srv.Stop() })
	return srv, sock
}

func connect(t *testing.T, sock string) *Client {
	t.Helper()
	client, err := TryConnect(sock)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if client == nil {
		t.Fatal("no daemon answered on the socket")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func envelope(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func TestServerToolRoundTrip(t *testing.T) {
	_, sock := startServer(t)
	client := connect(t, sock)

	if err := client.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	raw, err := client.CallTool("CreateMemoryBlock", map[string]any{
		"type": "knowledge",
		"text": "remember the port number",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env := envelope(t, raw)
	if env["success"] != true {
		t.Fatalf("create envelope = %v", env)
	}
	block, ok := env["block"].(map[string]any)
	if !ok {
		t.Fatalf("envelope block = %v", env["block"])
	}
	id, _ := block["id"].(string)
	if id == "" {
		t.Fatal("created block has no id")
	}

	raw, err = client.CallTool("GetMemoryBlock", map[string]any{"block_ids": []string{id}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	env = envelope(t, raw)
	if env["success"] != true {
		t.Fatalf("get envelope = %v", env)
	}
}

func TestServerBuiltinOperations(t *testing.T) {
	_, sock := startServer(t)
	client := connect(t, sock)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Namespace != "legacy" || status.ActiveBranch != "main" {
		t.Errorf("status context = %s/%s", status.Namespace, status.ActiveBranch)
	}
	if status.PID != os.Getpid() {
		t.Errorf("status pid = %d, want %d", status.PID, os.Getpid())
	}
	if status.ToolCount == 0 {
		t.Error("status reports no tools")
	}

	health, err := client.Health()
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "healthy" || !health.SQL || !health.VectorIndex {
		t.Errorf("health = %+v", health)
	}

	list, err := client.ListTools()
	if err != nil {
		t.Fatalf("list_tools: %v", err)
	}
	found := false
	for _, info := range list.Tools {
		if info.Name == "CreateMemoryBlock" {
			found = info.MemoryLinked
		}
	}
	if !found {
		t.Errorf("CreateMemoryBlock missing from tool list (%d tools)", list.Count)
	}

	snap, err := client.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if snap.Operations[OpStatus].Count == 0 {
		t.Errorf("metrics did not record the status call: %+v", snap.Operations)
	}
}

func TestServerToolFailureRidesInResult(t *testing.T) {
	_, sock := startServer(t)
	client := connect(t, sock)

	resp, err := client.Execute("NoSuchTool", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Success {
		t.Fatal("unknown tool reported success")
	}
	if resp.Error != nil {
		t.Fatalf("tool failure produced a transport error: %+v", resp.Error)
	}
	env := envelope(t, resp.Result)
	if env["error_code"] != "VALIDATION_ERROR" {
		t.Errorf("error_code = %v", env["error_code"])
	}
	msg, _ := env["error"].(string)
	if !strings.Contains(msg, "unknown tool") {
		t.Errorf("error = %q", msg)
	}
}

func TestServerMalformedRequestLine(t *testing.T) {
	_, sock := startServer(t)

	conn, err := net.DialTimeout("unix", sock, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeBadRequest {
		t.Fatalf("response = %+v", resp)
	}

	// The connection survives a bad line.
	if _, err := conn.Write([]byte(`{"tool":"ping"}` + "\n")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	line, err = reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read ping: %v", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal ping: %v", err)
	}
	if !resp.Success {
		t.Fatalf("ping after bad line failed: %+v", resp)
	}
}

func TestServerRequestIDEcho(t *testing.T) {
	srv, _ := startServer(t)

	resp := srv.handleRequest(&Request{Tool: OpPing, RequestID: "req-7"})
	if resp.RequestID != "req-7" {
		t.Errorf("request_id = %q, want req-7", resp.RequestID)
	}
	if !resp.Success {
		t.Errorf("ping failed: %+v", resp)
	}

	resp = srv.handleRequest(&Request{})
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("empty tool response = %+v", resp)
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	env := testbank.New(t)
	sock := filepath.Join(t.TempDir(), "membank.sock")
	if err := os.WriteFile(sock, []byte("stale"), 0o600); err != nil {
		t.Fatalf("plant stale socket: %v", err)
	}

	srv := NewServer(sock, env.Bank)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()
	select {
	case <-srv.WaitReady():
	case err := <-errCh:
		t.Fatalf("server did not replace stale socket: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready after 5s")
	}
	t.Cleanup(func() { _ = srv.Stop() })

	client := connect(t, sock)
	if err := client.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestServerShutdownOperation(t *testing.T) {
	_, sock := startServer(t)
	client := connect(t, sock)

	if err := client.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for endpointExists(sock) {
		if time.Now().After(deadline) {
			t.Fatal("socket still present after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}

	late, err := TryConnect(sock)
	if err != nil {
		t.Fatalf("post-shutdown connect: %v", err)
	}
	if late != nil {
		_ = late.Close()
		t.Fatal("daemon still answering after shutdown")
	}
}

func TestTryConnectWithoutDaemon(t *testing.T) {
	client, err := TryConnect(filepath.Join(t.TempDir(), "nothing.sock"))
	if err != nil {
		t.Fatalf("try connect: %v", err)
	}
	if client != nil {
		t.Fatal("got a client with no daemon running")
	}
}

func TestServerConcurrentClients(t *testing.T) {
	_, sock := startServer(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := TryConnect(sock)
			if err != nil || client == nil {
				errs <- err
				return
			}
			defer client.Close()
			for j := 0; j < 5; j++ {
				if err := client.Ping(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent client: %v", err)
	}
}
