package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/ui"
)

var (
	nsName        string
	nsSlug        string
	nsOwner       string
	nsDescription string
)

var namespaceCmd = &cobra.Command{
	Use:     "namespace",
	Aliases: []string{"ns"},
	Short:   "Manage namespaces",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a namespace",
	Long: `Creates a namespace for partitioning memory. IDs are normalized to
lowercase; name and slug default from the id when omitted.`,
	Example: `  membank namespace create agent-smith
  membank namespace create shared --name "Team Shared" --owner ops`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runNamespaceCreate(args[0])
	},
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List namespaces",
	Run: func(cmd *cobra.Command, args []string) {
		runNamespaceList()
	},
}

func init() {
	namespaceCreateCmd.Flags().StringVar(&nsName, "name", "", "Display name (default: the id)")
	namespaceCreateCmd.Flags().StringVar(&nsSlug, "slug", "", "URL-safe slug (default: derived from the id)")
	namespaceCreateCmd.Flags().StringVar(&nsOwner, "owner", "", "Owner identifier")
	namespaceCreateCmd.Flags().StringVar(&nsDescription, "description", "", "Free-form description")
	namespaceCmd.AddCommand(namespaceCreateCmd)
	namespaceCmd.AddCommand(namespaceListCmd)
	rootCmd.AddCommand(namespaceCmd)
}

func runNamespaceCreate(id string) {
	input := tools.CreateNamespaceInput{
		ID:          id,
		Name:        nsName,
		Slug:        nsSlug,
		OwnerID:     nsOwner,
		Description: nsDescription,
	}

	var res struct {
		Namespace *types.Namespace `json:"namespace"`
	}
	env := runTool(tools.ToolCreateNamespace, input, &res)

	if jsonOutput {
		outputEnvelope(env)
		return
	}
	fmt.Printf("%s created namespace %s\n", ui.RenderPassIcon(), ui.RenderAccent(res.Namespace.ID))
}

func runNamespaceList() {
	var res tools.ListNamespacesResult
	env := runTool(tools.ToolListNamespaces, nil, &res)

	if jsonOutput {
		outputEnvelope(env)
		return
	}

	for _, ns := range res.Namespaces {
		active := " "
		if ns.ID == cfg.Namespace {
			active = ui.RenderAccent("*")
		}
		line := fmt.Sprintf("%s %-20s %s", active, ns.ID, ns.Name)
		if !ns.IsActive {
			line += " " + ui.RenderMuted("(inactive)")
		}
		if ns.Description != "" {
			line += " " + ui.RenderMuted("- "+ns.Description)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d namespace(s)\n", res.Count)
}
