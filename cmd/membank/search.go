package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/ui"
)

var (
	searchTopK      int
	searchNamespace string
	searchType      string
	searchFull      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search across memory blocks",
	Long: `Embeds the query and ranks blocks by vector similarity. Results come
from the Redis mirror and are hydrated from SQL, so a block deleted
moments ago may still briefly score.`,
	Example: `  membank search "connection pool sizing"
  membank search --type doc --top-k 5 "merge strategy"
  membank search --namespace agent-smith "open tasks" --json`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchNamespace, "namespace", "", "Restrict to one namespace")
	searchCmd.Flags().StringVar(&searchType, "type", "", "Restrict to one block type")
	searchCmd.Flags().BoolVar(&searchFull, "full", false, "Print full block text instead of the first line")
	rootCmd.AddCommand(searchCmd)
}

// searchResult mirrors the GlobalSemanticSearch envelope fields.
type searchResult struct {
	Results []*memorybank.SearchHit `json:"results"`
	Count   int                     `json:"count"`
}

func runSearch(query string) {
	input := tools.GlobalSemanticSearchInput{
		Query:       query,
		TopK:        searchTopK,
		NamespaceID: searchNamespace,
		Type:        searchType,
	}

	var res searchResult
	env := runTool(tools.ToolGlobalSemanticSearch, input, &res)

	if jsonOutput {
		outputEnvelope(env)
		return
	}

	if res.Count == 0 {
		fmt.Println(ui.RenderMuted("no matches"))
		return
	}
	for _, hit := range res.Results {
		b := hit.Block
		fmt.Printf("%s  %s  %s  %s\n",
			ui.RenderScore(hit.Score),
			ui.RenderBlockType(string(b.Type)),
			ui.RenderAccent(b.ID),
			ui.RenderMuted(b.NamespaceID))
		if searchFull {
			fmt.Println(indentText(b.Text, "    "))
		} else {
			fmt.Printf("    %s\n", firstLine(b.Text, 100))
		}
	}
}

// firstLine returns the first line of text, truncated to max runes.
func firstLine(text string, max int) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return ui.TruncateSimple(line, max)
}

func indentText(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
