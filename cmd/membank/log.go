package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/ui"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history of the active branch",
	Run: func(cmd *cobra.Command, args []string) {
		runLog()
	},
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "Maximum number of commits")
	rootCmd.AddCommand(logCmd)
}

// logResult mirrors the DoltLog envelope fields.
type logResult struct {
	Commits []*storage.CommitInfo `json:"commits"`
	Count   int                   `json:"count"`
}

func runLog() {
	var res logResult
	env := runTool(tools.ToolDoltLog, tools.DoltLogInput{Limit: logLimit}, &res)

	if jsonOutput {
		outputEnvelope(env)
		return
	}

	if res.Count == 0 {
		fmt.Println(ui.RenderMuted("no commits"))
		return
	}
	for _, c := range res.Commits {
		fmt.Printf("%s  %s  %s\n",
			ui.RenderAccent(shortCommit(c.Hash)),
			ui.RenderMuted(c.Date.Format("2006-01-02 15:04")),
			firstLine(c.Message, 80))
		if c.Committer != "" {
			fmt.Printf("             %s\n", ui.RenderMuted(c.Committer))
		}
	}
}
