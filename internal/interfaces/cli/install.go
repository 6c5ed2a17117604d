package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInstallCommand downloads a plugin's script into the local plugins
// directory.
func NewInstallCommand(container *Container) *cobra.Command {
	return &cobra.Command{
		Use:   "install <plugin-id>",
		Short: "Download a plugin's script locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			fmt.Printf("📦 Installing plugin: %s\n", id)

			p, err := container.Manager.Download(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to install plugin: %w", err)
			}

			fmt.Printf("✅ Installed %s to %s\n", p.Name, p.LocalPath)
			return nil
		},
	}
}
