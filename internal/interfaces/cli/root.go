// Package cli implements the pf command tree. Every command is a thin
// consumer of the application.Manager facade.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"pluginforge.io/cli/internal/application"
	"pluginforge.io/cli/internal/core/ports"
	"pluginforge.io/cli/internal/infrastructure/config"
	procinfra "pluginforge.io/cli/internal/infrastructure/process"
	"pluginforge.io/cli/internal/infrastructure/source"
	"pluginforge.io/cli/internal/infrastructure/store"
	"pluginforge.io/cli/internal/logging"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// Container holds the dependencies commands need. It is populated by the
// root command's PersistentPreRunE once configuration has been resolved.
type Container struct {
	Manager *application.Manager
}

// NewRootCommand builds the base command when called without any subcommands.
func NewRootCommand(container *Container) *cobra.Command {
	var configFile string
	var debugMode bool

	rootCmd := &cobra.Command{
		Use:   "pf",
		Short: "PluginForge CLI - discover, install and run plugins",
		Long: `PluginForge CLI manages a local catalog of executable plugins.

It discovers plugin metadata from a configured source, materializes plugin
scripts locally, and runs them as child processes while streaming their
output.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Initialize(configFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg := config.Get()

			level := cfg.Log.Level
			if debugMode {
				level = "debug"
			}
			logging.InitLogger(level, cfg.Log.Format == "human")

			manager, err := buildManager(cmd, cfg)
			if err != nil {
				return err
			}
			container.Manager = manager
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default is $HOME/.pf/config.yaml)")

	rootCmd.AddCommand(NewDiscoverCommand(container))
	rootCmd.AddCommand(NewListCommand(container))
	rootCmd.AddCommand(NewInfoCommand(container))
	rootCmd.AddCommand(NewInstallCommand(container))
	rootCmd.AddCommand(NewRunCommand(container))

	return rootCmd
}

// buildManager wires the engine from the resolved configuration.
func buildManager(cmd *cobra.Command, cfg *config.Config) (*application.Manager, error) {
	var src ports.Source
	switch cfg.Source.Kind {
	case "local":
		local := source.NewLocalDirSource(cfg.Source.Locator)
		if err := local.Seed(); err != nil {
			return nil, fmt.Errorf("failed to seed local plugin source: %w", err)
		}
		src = local
	case "http":
		src = source.NewHTTPSource(cfg.Source.Locator)
	default:
		return nil, fmt.Errorf("unknown source kind %q (expected local or http)", cfg.Source.Kind)
	}

	pluginStore := store.NewFilesystemStore(cfg.State.Dir)
	runner := procinfra.NewRunner(cfg.Run.Interpreter)

	manager, err := application.NewManager(cmd.Context(), src, pluginStore, runner, cfg.State.PluginsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize plugin manager: %w", err)
	}
	return manager, nil
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	container := &Container{}
	rootCmd := NewRootCommand(container)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
