package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/rpc"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, branch, and memory status",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// workingSet mirrors the DoltStatus envelope fields.
type workingSet struct {
	Branch  string                 `json:"branch"`
	Clean   bool                   `json:"clean"`
	Entries []*storage.StatusEntry `json:"entries"`
}

func runStatus() {
	// Daemon section is best-effort: status still renders when only
	// the store is reachable.
	var daemonStatus *rpc.StatusResponse
	var daemonHealth *rpc.HealthResponse
	if !noDaemon {
		if client := tryDaemon(); client != nil {
			if st, err := client.Status(); err == nil {
				daemonStatus = st
			}
			if h, err := client.Health(); err == nil {
				daemonHealth = h
			}
			_ = client.Close()
		}
	}

	var ws workingSet
	runTool(tools.ToolDoltStatus, nil, &ws)

	var inv tools.InventoryResult
	runTool(tools.ToolGlobalMemoryInventory, nil, &inv)

	if jsonOutput {
		out := map[string]interface{}{
			"branch":        ws.Branch,
			"clean":         ws.Clean,
			"namespace":     cfg.Namespace,
			"total_blocks":  inv.Total,
			"by_type":       inv.ByType,
			"by_namespace":  inv.ByNamespace,
			"daemon_online": daemonStatus != nil,
		}
		if len(ws.Entries) > 0 {
			out["entries"] = ws.Entries
		}
		if daemonStatus != nil {
			out["daemon"] = daemonStatus
		}
		if daemonHealth != nil {
			out["health"] = daemonHealth
		}
		outputJSON(out)
		return
	}

	fmt.Println(ui.RenderAccent("membank status"))
	fmt.Println(ui.RenderSeparator())

	fmt.Println(ui.RenderKV("namespace", cfg.Namespace))
	fmt.Println(ui.RenderKV("branch", ws.Branch))
	if ws.Clean {
		fmt.Println(ui.RenderKV("working set", ui.RenderPass("clean")))
	} else {
		fmt.Println(ui.RenderKV("working set", ui.RenderWarn(fmt.Sprintf("%d table(s) changed", len(ws.Entries)))))
		for _, e := range ws.Entries {
			marker := " "
			if e.Staged {
				marker = "+"
			}
			fmt.Printf("    %s %s (%s)\n", marker, e.Table, ui.RenderMuted(e.Status))
		}
	}

	fmt.Println()
	fmt.Println(ui.RenderKV("blocks", fmt.Sprintf("%d", inv.Total)))
	for _, bt := range sortedKeys(inv.ByType) {
		fmt.Printf("    %s %s\n", ui.RenderBlockType(bt), ui.RenderMuted(fmt.Sprintf("%d", inv.ByType[bt])))
	}
	if len(inv.ByNamespace) > 1 {
		fmt.Println(ui.RenderKV("namespaces", fmt.Sprintf("%d", len(inv.ByNamespace))))
		for _, ns := range sortedKeys(inv.ByNamespace) {
			fmt.Printf("    %-20s %s\n", ns, ui.RenderMuted(fmt.Sprintf("%d", inv.ByNamespace[ns])))
		}
	}

	fmt.Println()
	if daemonStatus == nil {
		fmt.Println(ui.RenderKV("daemon", ui.RenderMuted("not running")))
		return
	}
	fmt.Println(ui.RenderKV("daemon", fmt.Sprintf("pid %d, up %.0fs", daemonStatus.PID, daemonStatus.UptimeSeconds)))
	fmt.Println(ui.RenderKV("socket", daemonStatus.SocketPath))
	fmt.Println(ui.RenderKV("tools", fmt.Sprintf("%d registered", daemonStatus.ToolCount)))
	if daemonHealth != nil {
		fmt.Println(ui.RenderKV("health", renderHealth(daemonHealth)))
	}
}

func renderHealth(h *rpc.HealthResponse) string {
	badge := ui.RenderFail(h.Status)
	switch h.Status {
	case "healthy":
		badge = ui.RenderPass(h.Status)
	case "degraded":
		badge = ui.RenderWarn(h.Status)
	}
	sql := ui.RenderFailIcon()
	if h.SQL {
		sql = ui.RenderPassIcon()
	}
	vec := ui.RenderFailIcon()
	if h.VectorIndex {
		vec = ui.RenderPassIcon()
	}
	return fmt.Sprintf("%s  sql %s  vector %s", badge, sql, vec)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
