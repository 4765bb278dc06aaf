package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/rpc"
	"github.com/cognidao/membank/internal/schema"
	"github.com/cognidao/membank/internal/storage/dolt"
	"github.com/cognidao/membank/internal/telemetry"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// toolEnvelope carries the control fields every tool response has.
// Result fields ride flat alongside them and are decoded separately by
// each command.
type toolEnvelope struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ActiveBranch string `json:"active_branch,omitempty"`
}

// tryDaemon returns a connected client when a daemon is listening on
// the resolved socket, nil when there is none.
func tryDaemon() *rpc.Client {
	client, err := rpc.TryConnect(resolveSocket())
	if err != nil || client == nil {
		if err != nil {
			debug.Logf("daemon connect failed, falling back to direct: %v\n", err)
		}
		return nil
	}
	client.SetActor(getActorWithGit())
	return client
}

// openBank opens the store directly with the effective config: Dolt
// (embedded or server mode), the Redis vector mirror, the deterministic
// embedder, and any TOML metadata schemas.
func openBank(ctx context.Context) (*memorybank.Bank, error) {
	store, err := dolt.New(ctx, &dolt.Config{
		Path:           cfg.Storage.Path,
		Database:       cfg.Storage.Server.Database,
		CommitterName:  cfg.Committer.Name,
		CommitterEmail: cfg.Committer.Email,
		ServerMode:     cfg.Storage.Server.Enabled,
		ServerHost:     cfg.Storage.Server.Host,
		ServerPort:     cfg.Storage.Server.Port,
		ServerUser:     cfg.Storage.Server.User,
		ServerPassword: cfg.Storage.Server.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	index := vector.NewRedisIndex(vector.RedisConfig{
		Addr:      cfg.Vector.Addr,
		Password:  cfg.Vector.Password,
		DB:        cfg.Vector.DB,
		KeyPrefix: cfg.Vector.Collection,
	})

	var reg *schema.Registry
	if dir := cfg.Schemas.Dir; dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			reg = schema.NewRegistry()
			if err := reg.LoadDir(dir); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("load schemas: %w", err)
			}
		}
	}

	bank, err := memorybank.New(ctx, telemetry.WrapStore(store), index, vector.NewLocalEmbedder(types.EmbeddingDim), memorybank.Config{
		AutoCommit: cfg.AutoCommit,
		Namespace:  cfg.Namespace,
		Branch:     cfg.Branch,
		Schemas:    reg,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return bank, nil
}

// invokeTool routes one tool call: through the daemon when one is
// running, else a direct store open for just this call. Returns the
// raw response envelope.
func invokeTool(ctx context.Context, name string, input any) (json.RawMessage, error) {
	if !noDaemon {
		if client := tryDaemon(); client != nil {
			defer func() { _ = client.Close() }()
			debug.Logf("tool %s via daemon %s\n", name, resolveSocket())
			return client.CallTool(name, input)
		}
	}

	bank, err := openBank(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = bank.Close() }()

	var raw json.RawMessage
	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("marshal input: %w", err)
		}
		raw = data
	}
	exec := tools.NewExecutor(tools.Builtin(), bank)
	return exec.ExecuteRaw(ctx, name, raw), nil
}

// runTool invokes a tool and decodes the envelope into result. A
// transport error or an unsuccessful envelope terminates the process
// with a message; on return the call succeeded. result may be nil when
// the caller only needs success. Returns the raw envelope for --json
// passthrough.
func runTool(name string, input any, result any) json.RawMessage {
	env, err := invokeTool(getRootContext(), name, input)
	if err != nil {
		fail("%s: %v", name, err)
	}

	var ctrl toolEnvelope
	if err := json.Unmarshal(env, &ctrl); err != nil {
		fail("%s: malformed response: %v", name, err)
	}
	if !ctrl.Success {
		if jsonOutput {
			// Agents get the whole envelope, error_code included.
			var obj map[string]interface{}
			_ = json.Unmarshal(env, &obj)
			encoder := json.NewEncoder(os.Stderr)
			encoder.SetIndent("", "  ")
			_ = encoder.Encode(obj)
			os.Exit(1)
		}
		if ctrl.ErrorCode != "" {
			fmt.Fprintf(os.Stderr, "Error: %s (%s)\n", ctrl.Error, ctrl.ErrorCode)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", ctrl.Error)
		}
		os.Exit(1)
	}

	if result != nil {
		if err := json.Unmarshal(env, result); err != nil {
			fail("%s: decode result: %v", name, err)
		}
	}
	return env
}

// outputEnvelope prints a raw envelope as indented JSON on stdout.
func outputEnvelope(env json.RawMessage) {
	var obj map[string]interface{}
	if err := json.Unmarshal(env, &obj); err != nil {
		fail("malformed envelope: %v", err)
	}
	outputJSON(obj)
}
