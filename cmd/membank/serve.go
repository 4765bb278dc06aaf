package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/rpc"
	"github.com/cognidao/membank/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (foreground)",
	Long: `Opens the store once and serves tool calls over a unix socket.
Clients share the daemon's connection pool and vector index instead of
paying the open cost per command. Run it under a supervisor for
long-lived deployments; Ctrl-C shuts it down cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	ctx := getRootContext()

	if err := telemetry.Init(ctx, "membank", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	bank, err := openBank(ctx)
	if err != nil {
		fail("%v", err)
	}
	// The server owns the bank from here; Stop closes it.

	socket := resolveSocket()
	srv := rpc.NewServer(socket, bank)

	go func() {
		<-srv.WaitReady()
		if !quietFlag {
			fmt.Printf("membank daemon %s listening on %s (pid %d)\n", Version, socket, os.Getpid())
			fmt.Printf("namespace=%s branch=%s\n", cfg.Namespace, cfg.Branch)
		}
	}()

	// Start blocks until shutdown. The server handles SIGINT/SIGTERM
	// and the shutdown operation itself, closing the bank on the way
	// out.
	if err := srv.Start(ctx); err != nil {
		fail("daemon: %v", err)
	}
}
