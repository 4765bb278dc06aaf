package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/rpc"
	toolreg "github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/ui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Long: `Lists every tool endpoint with its description. When a daemon is
running the list comes from it, so version drift between client and
daemon shows up here first.`,
	Run: func(cmd *cobra.Command, args []string) {
		runTools()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools() {
	infos := collectTools()

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"tools": infos,
			"count": len(infos),
		})
		return
	}

	for _, t := range infos {
		marker := ui.RenderMuted("·")
		if t.MemoryLinked {
			marker = ui.RenderAccent("●")
		}
		fmt.Printf("%s %-26s %s\n", marker, t.Name, ui.RenderMuted(t.Description))
	}
	fmt.Printf("\n%d tools (%s memory-linked)\n", len(infos), ui.RenderAccent("●"))
}

// collectTools prefers the daemon's registry, falling back to the
// built-in one compiled into this binary.
func collectTools() []rpc.ToolInfo {
	if !noDaemon {
		if client := tryDaemon(); client != nil {
			defer func() { _ = client.Close() }()
			if res, err := client.ListTools(); err == nil {
				return res.Tools
			}
		}
	}

	descriptors := toolreg.Builtin().Tools()
	infos := make([]rpc.ToolInfo, 0, len(descriptors))
	for _, t := range descriptors {
		infos = append(infos, rpc.ToolInfo{
			Name:         t.Name,
			Description:  t.Description,
			MemoryLinked: t.MemoryLinked,
		})
	}
	return infos
}
