// Package store persists the plugin table as a single keyed JSON document.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

const storeFileName = "plugins.json"

// FilesystemStore keeps the plugin table in a JSON file under the state
// directory. Saves are atomic (write to a temp file, then rename).
type FilesystemStore struct {
	stateDir string
	filePath string
}

// NewFilesystemStore creates a store rooted at stateDir.
func NewFilesystemStore(stateDir string) *FilesystemStore {
	return &FilesystemStore{
		stateDir: stateDir,
		filePath: filepath.Join(stateDir, storeFileName),
	}
}

// Path returns the location of the backing file.
func (s *FilesystemStore) Path() string {
	return s.filePath
}

// storeDocument is the persisted format.
type storeDocument struct {
	Version     string                    `json:"version"`
	LastUpdated time.Time                 `json:"last_updated"`
	Plugins     map[string]*plugin.Plugin `json:"plugins"`
}

// Load reads the persisted plugin map. A missing or unparsable file yields
// an empty map; every entity claiming to be downloaded is re-verified
// against the filesystem and demoted if its script file is gone.
func (s *FilesystemStore) Load(ctx context.Context) (map[string]*plugin.Plugin, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.filePath).Msg("could not read plugin store, starting empty")
		}
		return make(map[string]*plugin.Plugin), nil
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", s.filePath).Msg("plugin store is corrupt, resetting to empty")
		return make(map[string]*plugin.Plugin), nil
	}
	if doc.Plugins == nil {
		doc.Plugins = make(map[string]*plugin.Plugin)
	}

	for id, p := range doc.Plugins {
		if p == nil {
			delete(doc.Plugins, id)
			continue
		}
		if p.Status == "" {
			p.Status = plugin.StatusAvailable
		}
		if p.HealDownloadState(fileExists) {
			log.Debug().Str("plugin_id", id).Msg("downloaded plugin file missing on load, demoted")
		}
	}

	return doc.Plugins, nil
}

// Save persists the full plugin map, replacing the previous document.
func (s *FilesystemStore) Save(ctx context.Context, plugins map[string]*plugin.Plugin) error {
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	doc := storeDocument{
		Version:     "1.0",
		LastUpdated: time.Now().UTC(),
		Plugins:     plugins,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plugin store: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plugin store: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save plugin store: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
