package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/rpc"
)

var (
	// Version is the current version of membank (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		checkDaemon, _ := cmd.Flags().GetBool("daemon")
		if checkDaemon {
			showDaemonVersion()
			return
		}

		commit := resolveCommitHash()
		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if commit != "" {
				result["commit"] = commit
			}
			outputJSON(result)
			return
		}
		if commit != "" {
			fmt.Printf("membank version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		} else {
			fmt.Printf("membank version %s (%s)\n", Version, Build)
		}
	},
}

// showDaemonVersion reports the running daemon's version next to the
// client's so drift is visible after an upgrade.
func showDaemonVersion() {
	client, err := rpc.TryConnect(resolveSocket())
	if err != nil || client == nil {
		fmt.Fprintf(os.Stderr, "Error: daemon is not running\n")
		fmt.Fprintf(os.Stderr, "Hint: start it with 'membank serve'\n")
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	health, err := client.Health()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking daemon health: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"daemon_version": health.Version,
			"client_version": Version,
			"daemon_uptime":  health.Uptime,
		})
		return
	}
	fmt.Printf("Daemon version: %s\n", health.Version)
	fmt.Printf("Client version: %s\n", Version)
	fmt.Printf("Daemon uptime:  %.1f seconds\n", health.Uptime)
}

func init() {
	versionCmd.Flags().Bool("daemon", false, "Report the running daemon's version")
	rootCmd.AddCommand(versionCmd)
}

func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
