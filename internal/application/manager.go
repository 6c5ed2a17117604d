// Package application composes the plugin engine behind the Manager facade.
package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pluginforge.io/cli/internal/core/domain/plugin"
	"pluginforge.io/cli/internal/core/ports"
)

// Manager owns the authoritative plugin table and is the only component
// external callers interact with. It enforces the single-writer discipline:
// at most one lifecycle operation per plugin id at a time, and all store
// writes serialized.
type Manager struct {
	source     ports.Source
	store      ports.Store
	runner     ports.Runner
	pluginsDir string

	mu       sync.Mutex
	plugins  map[string]*plugin.Plugin
	inflight map[string]struct{}

	saveMu sync.Mutex
}

// NewManager creates a manager, ensures the local plugins directory exists
// and loads the persisted plugin table.
func NewManager(ctx context.Context, source ports.Source, store ports.Store, runner ports.Runner, pluginsDir string) (*Manager, error) {
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plugins directory: %w", err)
	}

	plugins, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin store: %w", err)
	}
	log.Debug().Int("count", len(plugins)).Msg("loaded plugin table")

	return &Manager{
		source:     source,
		store:      store,
		runner:     runner,
		pluginsDir: pluginsDir,
		plugins:    plugins,
		inflight:   make(map[string]struct{}),
	}, nil
}

// Discover fetches the current metadata set from the source, reconciles it
// into the local table and persists the result. On a fetch failure the local
// table is still persisted (status corrections included) and returned
// alongside the error.
func (m *Manager) Discover(ctx context.Context) ([]*plugin.Plugin, error) {
	remote, fetchErr := m.source.FetchMetadata(ctx)
	if fetchErr != nil {
		log.Warn().Err(fetchErr).Msg("failed to fetch plugin metadata")
	}

	m.mu.Lock()
	m.plugins = plugin.Reconcile(m.plugins, remote, fileExists)
	m.mu.Unlock()

	if err := m.persist(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist plugin table after discovery")
	}

	list := m.ListAll()
	if fetchErr != nil {
		return list, fmt.Errorf("failed to fetch plugin metadata: %w", fetchErr)
	}
	return list, nil
}

// Get returns a snapshot of the plugin with the given id.
func (m *Manager) Get(id string) (*plugin.Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
	}
	return p.Clone(), nil
}

// ListAll returns snapshots of every known plugin, ordered by id.
func (m *Manager) ListAll() []*plugin.Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]*plugin.Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		list = append(list, p.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Download materializes the plugin's script into the local plugins
// directory. Already-downloaded plugins with an intact file at the canonical
// path return immediately without a second transfer.
func (m *Manager) Download(ctx context.Context, id string) (*plugin.Plugin, error) {
	m.mu.Lock()
	p, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
	}
	if !m.acquireLocked(id) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", plugin.ErrBusy, id)
	}
	defer m.release(id)

	targetPath := filepath.Join(m.pluginsDir, p.ScriptFilename)

	if p.IsDownloaded && p.LocalPath == targetPath && fileExists(targetPath) {
		p.Status = plugin.StatusDownloaded
		snapshot := p.Clone()
		m.mu.Unlock()
		if err := m.persist(ctx); err != nil {
			return snapshot, err
		}
		return snapshot, nil
	}

	p.Status = plugin.StatusDownloading
	md := p.Metadata()
	m.mu.Unlock()

	materializeErr := m.materialize(ctx, md, targetPath)

	m.mu.Lock()
	if materializeErr != nil {
		p.Demote(plugin.StatusDownloadFailed)
	} else {
		p.LocalPath = targetPath
		p.IsDownloaded = true
		p.Status = plugin.StatusDownloaded
		p.FilenameChanged = false
	}
	snapshot := p.Clone()
	m.mu.Unlock()

	if err := m.persist(ctx); err != nil {
		log.Error().Err(err).Str("plugin_id", id).Msg("failed to persist plugin table after download")
	}

	if materializeErr != nil {
		return snapshot, &plugin.DownloadError{PluginID: id, Reason: "materialize failed", Err: materializeErr}
	}
	return snapshot, nil
}

// materialize performs the blocking byte transfer plus the post-download
// permission grant, cleaning up any partial file on failure.
func (m *Manager) materialize(ctx context.Context, md plugin.PluginMetadata, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create plugins directory: %w", err)
	}

	if err := m.source.Materialize(ctx, md, targetPath); err != nil {
		if removeErr := os.Remove(targetPath); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warn().Err(removeErr).Str("path", targetPath).Msg("could not remove partially downloaded file")
		}
		return err
	}

	if md.ScriptType == plugin.ScriptShell && runtime.GOOS != "windows" {
		// Permission-grant failure downgrades to a warning; the artifact
		// itself is intact and the runner retries the grant before spawn.
		if err := os.Chmod(targetPath, 0o755); err != nil {
			log.Warn().Err(err).Str("path", targetPath).Msg("could not set execute permission on downloaded script")
		}
	}

	return nil
}

// Run marshals the supplied values against the plugin's argument schema,
// spawns the script and streams its output to sink. A marshalling failure
// short-circuits before any process is spawned or state mutated.
func (m *Manager) Run(ctx context.Context, id string, values map[string]string, flags map[string]bool, sink ports.OutputSink) (ports.RunOutcome, error) {
	m.mu.Lock()
	p, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		return ports.RunOutcome{}, fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
	}
	if !m.acquireLocked(id) {
		m.mu.Unlock()
		return ports.RunOutcome{}, fmt.Errorf("%w: %s", plugin.ErrBusy, id)
	}
	defer m.release(id)

	argv, err := plugin.MarshalArgs(p.ExpectedArgs, values, flags)
	if err != nil {
		m.mu.Unlock()
		return ports.RunOutcome{}, err
	}

	if !p.IsDownloaded {
		m.mu.Unlock()
		return ports.RunOutcome{}, fmt.Errorf("%w: %s", plugin.ErrNotDownloaded, id)
	}
	if p.HealDownloadState(fileExists) {
		m.mu.Unlock()
		if persistErr := m.persist(ctx); persistErr != nil {
			log.Error().Err(persistErr).Str("plugin_id", id).Msg("failed to persist plugin table")
		}
		return ports.RunOutcome{}, fmt.Errorf("%w: %s", plugin.ErrFileMissing, id)
	}

	p.Status = plugin.StatusRunning
	snapshot := p.Clone()
	m.mu.Unlock()

	runID := uuid.NewString()
	log.Info().
		Str("run_id", runID).
		Str("plugin_id", id).
		Strs("argv", argv).
		Msg("running plugin")

	outcome, runErr := m.runner.Run(ctx, snapshot, argv, sink)

	m.mu.Lock()
	switch {
	case runErr == nil:
		p.Status = plugin.StatusRunSucceeded
		p.LastExitCode = 0
	case errors.Is(runErr, plugin.ErrFileMissing):
		p.Demote(plugin.StatusFileMissing)
	case errors.Is(runErr, plugin.ErrUnsupportedScriptType):
		p.Status = plugin.StatusUnsupportedType
	case errors.Is(runErr, plugin.ErrExecPermission):
		p.Status = plugin.StatusExecPermission
	default:
		p.Status = plugin.StatusRunFailed
		p.LastExitCode = outcome.ExitCode
		var runFailure *plugin.RunError
		if !errors.As(runErr, &runFailure) {
			// Spawn failures carry no exit code.
			p.LastExitCode = -1
		}
	}
	m.mu.Unlock()

	if err := m.persist(ctx); err != nil {
		log.Error().Err(err).Str("plugin_id", id).Msg("failed to persist plugin table after run")
	}

	log.Info().
		Str("run_id", runID).
		Str("plugin_id", id).
		Bool("success", outcome.Success).
		Int("exit_code", outcome.ExitCode).
		Msg("plugin run finished")

	return outcome, runErr
}

// acquireLocked marks id as having a lifecycle operation in flight. Caller
// must hold m.mu.
func (m *Manager) acquireLocked(id string) bool {
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

// persist writes a snapshot of the plugin table through the store. The
// snapshot is taken under the table lock, the write happens under the
// dedicated save lock so concurrent callers cannot interleave writes.
func (m *Manager) persist(ctx context.Context) error {
	m.mu.Lock()
	snapshot := make(map[string]*plugin.Plugin, len(m.plugins))
	for id, p := range m.plugins {
		snapshot[id] = p.Clone()
	}
	m.mu.Unlock()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	return m.store.Save(ctx, snapshot)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
