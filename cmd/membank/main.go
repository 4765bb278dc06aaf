package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/config"
	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/rpc"
)

var (
	cfgFile    string
	cfg        *config.Config
	actor      string
	jsonOutput bool

	// Daemon routing. Commands go through a running daemon when one is
	// listening on the socket; --no-daemon forces a direct open.
	noDaemon   bool
	socketFlag string

	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// getActorWithGit returns the actor recorded on writes and proofs.
// Priority: --actor flag > MEMBANK_ACTOR env > git config user.name >
// $USER > "unknown". Agents set MEMBANK_ACTOR; developers get their git
// identity for free.
func getActorWithGit() string {
	if actor != "" {
		return actor
	}

	if envActor := os.Getenv("MEMBANK_ACTOR"); envActor != "" {
		return envActor
	}

	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}

	if user := os.Getenv("USER"); user != "" {
		return user
	}

	return "unknown"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: discover .membank/config.yaml, then ~/.membank/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name recorded on writes (default: $MEMBANK_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "Open the store directly instead of routing through a running daemon")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Daemon socket path (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// --version on the root command, same behavior as the version subcommand
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "membank",
	Short: "membank - Versioned memory bank for autonomous agents",
	Long: `Branchable, namespaced memory for agents. Memory blocks live in
Dolt-backed SQL with full commit history; a Redis vector mirror serves
semantic recall. Every write is attributed and provable.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("membank version %s (%s)\n", Version, Build)
			return
		}
		// No subcommand - show help
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyVerbosityFlags()
		loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// setupSignalContext installs a context cancelled by SIGINT/SIGTERM so
// long tool calls (push, pull, merge) unwind cleanly.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func getRootContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

// applyVerbosityFlags maps --verbose/--quiet onto the debug package.
// MEMBANK_DEBUG is read at process start, so flags must be applied
// explicitly here.
func applyVerbosityFlags() {
	if verboseFlag {
		debug.SetVerbose(true)
	}
	if quietFlag {
		debug.SetQuiet(true)
	}
}

// loadConfig resolves the effective config for every command. A missing
// config file is fine: defaults plus MEMBANK_* env overrides apply.
func loadConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
}

// resolveSocket returns the daemon socket path, flag over config.
func resolveSocket() string {
	if socketFlag != "" {
		return socketFlag
	}
	return cfg.Socket
}

func main() {
	// Daemon and client report the binary's version for compatibility
	// checks across the socket.
	rpc.ServerVersion = Version
	rpc.ClientVersion = Version

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
