package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pluginforge.io/cli/internal/core/ports"
)

var (
	stdoutTag = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Render("[out]")
	stderrTag = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("[err]")
)

// NewRunCommand executes a downloaded plugin and streams its output.
func NewRunCommand(container *Container) *cobra.Command {
	var setValues []string
	var setFlags []string

	cmd := &cobra.Command{
		Use:   "run <plugin-id>",
		Short: "Run a downloaded plugin and stream its output",
		Long: `Run a downloaded plugin as a child process.

Argument values are matched against the plugin's declared argument schema
(see 'pf info'). String, integer and file-path arguments are supplied with
--set name=value; boolean flags are enabled with --flag name.`,
		Example: `  # Run with a required value and a boolean flag
  pf run py_process_002 --set input-file=data.csv --flag verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			values, err := parseSetValues(setValues)
			if err != nil {
				return err
			}
			flags := make(map[string]bool, len(setFlags))
			for _, name := range setFlags {
				flags[name] = true
			}

			fmt.Printf("--- Running %s ---\n", id)
			outcome, err := container.Manager.Run(cmd.Context(), id, values, flags, printStreamLine)
			if err != nil {
				fmt.Printf("--- %s failed ---\n", id)
				return err
			}

			fmt.Printf("--- %s finished successfully (exit code %d) ---\n", id, outcome.ExitCode)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&setValues, "set", nil, "Argument value as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&setFlags, "flag", nil, "Boolean flag to enable (repeatable)")

	return cmd
}

// printStreamLine renders one line of plugin output tagged with its stream.
func printStreamLine(line ports.StreamLine) {
	tag := stdoutTag
	if line.Stream == ports.StreamStderr {
		tag = stderrTag
	}
	fmt.Printf("%s %s\n", tag, line.Text)
}

// parseSetValues parses repeated name=value pairs.
func parseSetValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", pair)
		}
		values[name] = value
	}
	return values, nil
}
