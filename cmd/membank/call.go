package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	callInput     string
	callInputFile string
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool directly with raw JSON input",
	Long: `Sends one tool invocation exactly as an agent transport would and
prints the response envelope. The primary debugging surface: whatever a
coordinator can do, call can replay.`,
	Example: `  membank call HealthCheck
  membank call CreateMemoryBlock --input '{"type":"knowledge","text":"beta ships friday"}'
  membank call BulkCreateBlocks --input-file blocks.json
  echo '{"query":"merge"}' | membank call QueryDocMemoryBlock --input -`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCall(args[0])
	},
}

func init() {
	callCmd.Flags().StringVar(&callInput, "input", "", "Tool input as a JSON object ('-' reads stdin)")
	callCmd.Flags().StringVar(&callInputFile, "input-file", "", "Read tool input from a JSON file")
	rootCmd.AddCommand(callCmd)
}

func runCall(tool string) {
	raw, err := readCallInput()
	if err != nil {
		fail("%v", err)
	}

	// A nil RawMessage boxed into any is non-nil; keep the interface
	// itself nil so no-input tools stay inputless on the wire.
	var input any
	if raw != nil {
		input = raw
	}

	env, err := invokeTool(getRootContext(), tool, input)
	if err != nil {
		fail("%s: %v", tool, err)
	}

	var ctrl toolEnvelope
	if err := json.Unmarshal(env, &ctrl); err != nil {
		fail("%s: malformed response: %v", tool, err)
	}
	outputEnvelope(env)
	if !ctrl.Success {
		os.Exit(1)
	}
}

// readCallInput resolves --input / --input-file into a raw payload.
// Returns nil when neither is given so no-input tools work bare.
func readCallInput() (json.RawMessage, error) {
	if callInput != "" && callInputFile != "" {
		return nil, fmt.Errorf("--input and --input-file are mutually exclusive")
	}
	switch {
	case callInput == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	case callInput != "":
		return json.RawMessage(callInput), nil
	case callInputFile != "":
		data, err := os.ReadFile(callInputFile)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	}
	return nil, nil
}
