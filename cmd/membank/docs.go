package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/ui"
)

var (
	docsRender bool
	docsFull   bool
	docsPager  bool
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Work with document blocks",
}

var docsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one block with its metadata",
	Long: `Prints a block's header (id, type, namespace, version, timestamps)
followed by its text. Long text is elided unless --full; --render pipes
markdown through the terminal renderer.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDocsShow(args[0])
	},
}

func init() {
	docsShowCmd.Flags().BoolVar(&docsRender, "render", false, "Render markdown for the terminal")
	docsShowCmd.Flags().BoolVar(&docsFull, "full", false, "Print complete text without truncation")
	docsShowCmd.Flags().BoolVar(&docsPager, "no-pager", false, "Never pipe output through a pager")
	docsCmd.AddCommand(docsShowCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsShow(id string) {
	var res tools.GetBlocksResult
	env := runTool(tools.ToolGetMemoryBlock, tools.GetMemoryBlockInput{BlockIDs: []string{id}}, &res)

	if len(res.Blocks) == 0 {
		fail("block %s not found", id)
	}
	block := res.Blocks[0]

	if jsonOutput {
		outputEnvelope(env)
		return
	}

	var b strings.Builder
	b.WriteString(ui.RenderAccent(block.ID) + "  " + ui.RenderBlockType(string(block.Type)) + "\n")
	b.WriteString(ui.RenderKV("namespace", block.NamespaceID) + "\n")
	b.WriteString(ui.RenderKV("version", fmt.Sprintf("%d", block.BlockVersion)) + "\n")
	if block.State != "" {
		b.WriteString(ui.RenderKV("state", string(block.State)) + "\n")
	}
	if len(block.Tags) > 0 {
		b.WriteString(ui.RenderKV("tags", strings.Join(block.Tags, ", ")) + "\n")
	}
	if block.CreatedBy != "" {
		b.WriteString(ui.RenderKV("created by", block.CreatedBy) + "\n")
	}
	b.WriteString(ui.RenderKV("created", block.CreatedAt.Format("2006-01-02 15:04:05")) + "\n")
	b.WriteString(ui.RenderKV("updated", block.UpdatedAt.Format("2006-01-02 15:04:05")) + "\n")
	if len(block.Metadata) > 0 {
		b.WriteString(ui.RenderKV("metadata", formatMetadata(block.Metadata)) + "\n")
	}
	b.WriteString(ui.RenderSeparator() + "\n")

	text := block.Text
	if !docsFull {
		text = ui.TruncateLines(text, ui.DefaultMaxLines, ui.DefaultContextLines)
	}
	if docsRender {
		text = ui.RenderMarkdown(text)
	}
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}

	if err := ui.ToPager(b.String(), ui.PagerOptions{NoPager: docsPager}); err != nil {
		fmt.Print(b.String())
	}
}

// formatMetadata renders typed metadata compactly for the header.
func formatMetadata(meta map[string]types.MetaValue) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k].AsAny()))
	}
	return strings.Join(parts, " ")
}
