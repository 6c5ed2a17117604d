package ports

import (
	"context"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

// Source is the external capability that publishes plugin metadata and can
// materialize a plugin's script bytes at a local path. Implementations may
// be a real remote endpoint or a simulated local directory; the engine does
// not care which.
type Source interface {
	// FetchMetadata returns the current set of published plugin metadata.
	FetchMetadata(ctx context.Context) ([]plugin.PluginMetadata, error)

	// Materialize writes the script bytes for the given metadata to
	// targetPath, overwriting any existing file.
	Materialize(ctx context.Context, md plugin.PluginMetadata, targetPath string) error
}
