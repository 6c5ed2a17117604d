package ports

import (
	"context"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

// Store is the durable, keyed persistence of plugin entities.
type Store interface {
	// Load returns the persisted plugin map. A missing or corrupt store
	// yields an empty map, never an error: load fails soft so a damaged
	// state file cannot brick the engine.
	Load(ctx context.Context) (map[string]*plugin.Plugin, error)

	// Save persists the full plugin map, replacing the previous document.
	Save(ctx context.Context, plugins map[string]*plugin.Plugin) error
}
