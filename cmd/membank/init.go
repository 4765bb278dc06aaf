package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/cognidao/membank/internal/config"
	"github.com/cognidao/membank/internal/tools"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/ui"
)

var (
	initStorageDir string
	initRedisAddr  string
	initNamespace  string
	initServerMode bool
	initLocal      bool
	initForce      bool
	initYes        bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file and initialize the store",
	Long: `Writes a config file, opens the store once so the schema exists, and
creates the working namespace. Interactive on a terminal; --yes (or a
non-TTY stdin) takes defaults and flags as given.`,
	Example: `  membank init
  membank init --yes --namespace agent-smith
  membank init --local --storage-dir ./bankdata`,
	Run: func(cmd *cobra.Command, args []string) {
		runInit()
	},
}

func init() {
	initCmd.Flags().StringVar(&initStorageDir, "storage-dir", "", "Data directory for the embedded store")
	initCmd.Flags().StringVar(&initRedisAddr, "redis-addr", "", "Redis address for the vector mirror")
	initCmd.Flags().StringVar(&initNamespace, "namespace", "", "Working namespace")
	initCmd.Flags().BoolVar(&initServerMode, "server", false, "Connect to a running sql-server instead of embedding")
	initCmd.Flags().BoolVar(&initLocal, "local", false, "Write .membank/config.yaml in the current directory instead of the home directory")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initYes, "yes", false, "Non-interactive: accept defaults and flags")
	rootCmd.AddCommand(initCmd)
}

func runInit() {
	newCfg := config.Default()
	applyInitFlags(newCfg)

	if !initYes && ui.IsTerminal() {
		if err := runInitForm(newCfg); err != nil {
			if err == huh.ErrUserAborted {
				fmt.Fprintln(os.Stderr, "Init cancelled.")
				os.Exit(0)
			}
			fail("form error: %v", err)
		}
	}

	target := initConfigPath()
	if _, err := os.Stat(target); err == nil && !initForce {
		fail("%s already exists (use --force to overwrite)", target)
	}
	if err := newCfg.WriteFile(target); err != nil {
		fail("%v", err)
	}

	// Open once so the schema exists and the namespace is real before
	// the first agent connects. Direct open: no daemon is running yet.
	cfg = newCfg
	noDaemon = true
	if ns := newCfg.Namespace; ns != types.DefaultNamespace {
		runTool(tools.ToolCreateNamespace, tools.CreateNamespaceInput{ID: ns}, nil)
	} else {
		runTool(tools.ToolHealthCheck, nil, nil)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"config":    target,
			"namespace": newCfg.Namespace,
			"branch":    newCfg.Branch,
			"storage":   storageSummary(newCfg),
			"vector":    newCfg.Vector.Addr,
		})
		return
	}
	fmt.Printf("%s wrote %s\n", ui.RenderPassIcon(), target)
	fmt.Println(ui.RenderKV("storage", storageSummary(newCfg)))
	fmt.Println(ui.RenderKV("vector", newCfg.Vector.Addr))
	fmt.Println(ui.RenderKV("namespace", newCfg.Namespace))
	fmt.Println(ui.RenderKV("branch", newCfg.Branch))
	fmt.Printf("\nStart the daemon with %s\n", ui.RenderAccent("membank serve"))
}

func applyInitFlags(c *config.Config) {
	if initStorageDir != "" {
		c.Storage.Path = initStorageDir
	}
	if initRedisAddr != "" {
		c.Vector.Addr = initRedisAddr
	}
	if initNamespace != "" {
		c.Namespace = types.NormalizeNamespaceID(initNamespace)
	}
	if initServerMode {
		c.Storage.Server.Enabled = true
	}
}

// runInitForm walks the interactive setup. Server connection details
// get their own form, shown only when server mode is picked.
func runInitForm(c *config.Config) error {
	mode := "embedded"
	if c.Storage.Server.Enabled {
		mode = "server"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Storage directory").
				Description("Where the embedded database lives").
				Placeholder(c.Storage.Path).
				Value(&c.Storage.Path).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("storage directory is required")
					}
					return nil
				}),

			huh.NewSelect[string]().
				Title("Storage mode").
				Description("Embedded opens the data directory in-process; server connects to a running sql-server").
				Options(
					huh.NewOption("Embedded (single process)", "embedded"),
					huh.NewOption("Server (shared sql-server)", "server"),
				).
				Value(&mode),

			huh.NewInput().
				Title("Redis address").
				Description("Vector mirror for semantic search").
				Placeholder(c.Vector.Addr).
				Value(&c.Vector.Addr),

			huh.NewInput().
				Title("Namespace").
				Description("Working namespace for this agent or team").
				Placeholder(c.Namespace).
				Value(&c.Namespace).
				Validate(func(s string) error {
					if types.NormalizeNamespaceID(s) == "" {
						return fmt.Errorf("namespace is required")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Write config?").
				Affirmative("Write").
				Negative("Cancel"),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		return err
	}
	c.Namespace = types.NormalizeNamespaceID(c.Namespace)
	c.Storage.Server.Enabled = mode == "server"
	if !c.Storage.Server.Enabled {
		return nil
	}

	portStr := strconv.Itoa(c.Storage.Server.Port)
	serverForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("SQL server host").
				Placeholder(c.Storage.Server.Host).
				Value(&c.Storage.Server.Host),

			huh.NewInput().
				Title("Port").
				Placeholder(portStr).
				Value(&portStr).
				Validate(func(s string) error {
					if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
						return fmt.Errorf("port must be a number")
					}
					return nil
				}),

			huh.NewInput().
				Title("User").
				Placeholder(c.Storage.Server.User).
				Value(&c.Storage.Server.User),

			huh.NewInput().
				Title("Database").
				Placeholder(c.Storage.Server.Database).
				Value(&c.Storage.Server.Database),
		),
	).WithTheme(huh.ThemeDracula())

	if err := serverForm.Run(); err != nil {
		return err
	}
	if port, err := strconv.Atoi(strings.TrimSpace(portStr)); err == nil {
		c.Storage.Server.Port = port
	}
	return nil
}

func initConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if initLocal {
		return filepath.Join(".membank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".membank", "config.yaml")
	}
	return filepath.Join(home, ".membank", "config.yaml")
}

func storageSummary(c *config.Config) string {
	if c.Storage.Server.Enabled {
		return fmt.Sprintf("server %s:%d/%s", c.Storage.Server.Host, c.Storage.Server.Port, c.Storage.Server.Database)
	}
	return "embedded " + c.Storage.Path
}
