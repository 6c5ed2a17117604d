package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// NewDiscoverCommand fetches fresh metadata from the source and merges it
// into the local catalog.
func NewDiscoverCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Fetch the plugin catalog from the configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("🔍 Fetching plugin catalog...")
			plugins, err := container.Manager.Discover(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("✅ Catalog has %d plugin(s)\n\n", len(plugins))
			printPluginTable(plugins)
			return nil
		},
	}
}

// NewListCommand lists the locally known plugins.
func NewListCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known plugins and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			plugins := container.Manager.ListAll()
			if len(plugins) == 0 {
				fmt.Println("No plugins known yet. Run 'pf discover' first.")
				return nil
			}
			printPluginTable(plugins)
			return nil
		},
	}
}

// NewInfoCommand shows a single plugin including its argument schema.
func NewInfoCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "info <plugin-id>",
		Short: "Show plugin details and accepted arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := container.Manager.Get(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s (%s)\n", p.Name, p.ID)
			fmt.Printf("  Version:     %s\n", p.Version)
			fmt.Printf("  Author:      %s\n", p.Author)
			fmt.Printf("  Script:      %s (%s)\n", p.ScriptFilename, p.ScriptType)
			fmt.Printf("  Status:      %s\n", renderStatus(p))
			if p.IsDownloaded {
				fmt.Printf("  Local path:  %s\n", p.LocalPath)
			}
			fmt.Printf("  Description: %s\n", p.Description)

			if len(p.ExpectedArgs) == 0 {
				fmt.Println("\nThis plugin accepts no arguments.")
				return nil
			}

			fmt.Println("\nArguments:")
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "  NAME\tTYPE\tREQUIRED\tDEFAULT\tDESCRIPTION")
			for _, arg := range p.ExpectedArgs {
				required := ""
				if arg.Required {
					required = "yes"
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
					arg.Name, arg.Type, required, arg.Default, arg.Description)
			}
			w.Flush()
			return nil
		},
	}
}

// printPluginTable renders the catalog in table format.
func printPluginTable(plugins []*plugin.Plugin) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tTYPE\tSTATUS")
	fmt.Fprintln(w, "--\t----\t-------\t----\t------")
	for _, p := range plugins {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Version, p.ScriptType, renderStatus(p))
	}
	w.Flush()
}

// renderStatus colors a plugin's status for terminal display.
func renderStatus(p *plugin.Plugin) string {
	text := string(p.Status)
	switch p.Status {
	case plugin.StatusRunFailed:
		text = fmt.Sprintf("%s (exit %d)", p.Status, p.LastExitCode)
	case plugin.StatusAvailable:
		if p.FilenameChanged {
			text = string(p.Status) + " (filename changed)"
		}
	}

	switch p.Status {
	case plugin.StatusDownloaded, plugin.StatusRunSucceeded:
		return okStyle.Render(text)
	case plugin.StatusDownloadFailed, plugin.StatusRunFailed, plugin.StatusFileMissing,
		plugin.StatusUnsupportedType, plugin.StatusExecPermission:
		return failStyle.Render(text)
	default:
		return dimStyle.Render(text)
	}
}
