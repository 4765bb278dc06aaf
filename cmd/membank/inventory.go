package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/timeparsing"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/ui"
)

var (
	inventorySince     string
	inventoryUntil     string
	inventoryNamespace string
	inventoryType      string
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Count memory blocks by type and namespace",
	Long: `Aggregates block counts across the bank. Time filters accept compact
offsets (-2d, +6h), natural language ("yesterday", "last monday"), or
absolute dates (2026-01-15).`,
	Example: `  membank inventory
  membank inventory --since -7d
  membank inventory --since "last monday" --type knowledge
  membank inventory --namespace agent-smith --json`,
	Run: func(cmd *cobra.Command, args []string) {
		runInventory()
	},
}

func init() {
	inventoryCmd.Flags().StringVar(&inventorySince, "since", "", "Only count blocks created after this time")
	inventoryCmd.Flags().StringVar(&inventoryUntil, "until", "", "Only count blocks created before this time")
	inventoryCmd.Flags().StringVar(&inventoryNamespace, "namespace", "", "Restrict to one namespace")
	inventoryCmd.Flags().StringVar(&inventoryType, "type", "", "Restrict to one block type")
	rootCmd.AddCommand(inventoryCmd)
}

func runInventory() {
	input := tools.GlobalMemoryInventoryInput{
		NamespaceID: inventoryNamespace,
		Type:        inventoryType,
	}
	if inventorySince != "" {
		t, err := timeparsing.ParseRelativeTime(inventorySince, time.Now())
		if err != nil {
			fail("--since: %v", err)
		}
		input.CreatedAfter = &t
	}
	if inventoryUntil != "" {
		t, err := timeparsing.ParseRelativeTime(inventoryUntil, time.Now())
		if err != nil {
			fail("--until: %v", err)
		}
		input.CreatedBefore = &t
	}

	var inv tools.InventoryResult
	env := runTool(tools.ToolGlobalMemoryInventory, input, &inv)

	if jsonOutput {
		outputEnvelope(env)
		return
	}

	fmt.Println(ui.RenderKV("total", fmt.Sprintf("%d", inv.Total)))
	if len(inv.ByType) > 0 {
		fmt.Println(ui.RenderAccent("by type"))
		for _, bt := range sortedKeys(inv.ByType) {
			fmt.Printf("  %-14s %d\n", ui.RenderBlockType(bt), inv.ByType[bt])
		}
	}
	if len(inv.ByNamespace) > 0 {
		fmt.Println(ui.RenderAccent("by namespace"))
		for _, ns := range sortedKeys(inv.ByNamespace) {
			fmt.Printf("  %-20s %d\n", ns, inv.ByNamespace[ns])
		}
	}
}
