package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pluginforge.io/cli/internal/core/domain/plugin"
	"pluginforge.io/cli/internal/core/ports"
	procinfra "pluginforge.io/cli/internal/infrastructure/process"
	"pluginforge.io/cli/internal/infrastructure/store"
)

// fakeSource is an in-memory source capability with scripted behavior.
type fakeSource struct {
	mu               sync.Mutex
	metadata         []plugin.PluginMetadata
	fetchErr         error
	materializeErr   error
	materializeCalls int
	scriptBody       string
}

func (f *fakeSource) FetchMetadata(ctx context.Context) ([]plugin.PluginMetadata, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.metadata, nil
}

func (f *fakeSource) Materialize(ctx context.Context, md plugin.PluginMetadata, targetPath string) error {
	f.mu.Lock()
	f.materializeCalls++
	f.mu.Unlock()

	if f.materializeErr != nil {
		// Simulate a partial write before the failure.
		os.WriteFile(targetPath, []byte("partial"), 0o644)
		return f.materializeErr
	}
	return os.WriteFile(targetPath, []byte(f.scriptBody), 0o644)
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.materializeCalls
}

// blockingRunner blocks inside Run until released, to hold a plugin busy.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	runs    int
	mu      sync.Mutex
}

func (r *blockingRunner) Run(ctx context.Context, p *plugin.Plugin, argv []string, sink ports.OutputSink) (ports.RunOutcome, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	close(r.started)
	<-r.release
	return ports.RunOutcome{Success: true, ExitCode: 0}, nil
}

func shellMetadata(id, filename string) plugin.PluginMetadata {
	return plugin.PluginMetadata{
		ID:             id,
		Name:           "Plugin " + id,
		Version:        "1.0",
		ScriptType:     plugin.ScriptShell,
		SourceLocator:  "local://" + filename,
		ScriptFilename: filename,
	}
}

type managerFixture struct {
	manager *Manager
	source  *fakeSource
	store   *store.FilesystemStore
	dir     string
}

func newFixture(t *testing.T, src *fakeSource, runner ports.Runner) *managerFixture {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFilesystemStore(filepath.Join(dir, "state"))
	if runner == nil {
		runner = procinfra.NewRunner("sh")
	}

	m, err := NewManager(context.Background(), src, st, runner, filepath.Join(dir, "plugins"))
	require.NoError(t, err)
	return &managerFixture{manager: m, source: src, store: st, dir: dir}
}

func TestManager_DiscoverCreatesAndPersists(t *testing.T) {
	src := &fakeSource{metadata: []plugin.PluginMetadata{shellMetadata("p1", "run.sh")}}
	f := newFixture(t, src, nil)

	plugins, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, plugin.StatusAvailable, plugins[0].Status)

	// A second manager over the same store sees the discovered plugin.
	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, persisted, "p1")
}

func TestManager_DiscoverFetchFailureKeepsLocalState(t *testing.T) {
	src := &fakeSource{metadata: []plugin.PluginMetadata{shellMetadata("p1", "run.sh")}}
	f := newFixture(t, src, nil)

	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	src.fetchErr = errors.New("network down")
	plugins, err := f.manager.Discover(context.Background())
	require.Error(t, err)
	assert.Len(t, plugins, 1, "local entities survive a failed fetch")
}

func TestManager_DownloadHappyPath(t *testing.T) {
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{shellMetadata("p1", "run.sh")},
		scriptBody: "#!/bin/sh\nexit 0\n",
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	p, err := f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, p.IsDownloaded)
	assert.Equal(t, plugin.StatusDownloaded, p.Status)
	assert.Equal(t, filepath.Join(f.dir, "plugins", "run.sh"), p.LocalPath)

	info, err := os.Stat(p.LocalPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "shell scripts get execute permission on download")
}

func TestManager_DownloadIdempotent(t *testing.T) {
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{shellMetadata("p1", "run.sh")},
		scriptBody: "#!/bin/sh\nexit 0\n",
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	_, err = f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)
	p, err := f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	assert.True(t, p.IsDownloaded)
	assert.Equal(t, 1, src.calls(), "an intact download must not trigger a second materialize")
}

func TestManager_DownloadFailureCleansUp(t *testing.T) {
	src := &fakeSource{
		metadata:       []plugin.PluginMetadata{shellMetadata("p1", "run.sh")},
		materializeErr: errors.New("source unreachable"),
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	p, err := f.manager.Download(context.Background(), "p1")
	require.Error(t, err)
	var dlErr *plugin.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, "p1", dlErr.PluginID)

	assert.False(t, p.IsDownloaded)
	assert.Equal(t, plugin.StatusDownloadFailed, p.Status)
	assert.Empty(t, p.LocalPath)

	_, statErr := os.Stat(filepath.Join(f.dir, "plugins", "run.sh"))
	assert.True(t, os.IsNotExist(statErr), "partially written file must be removed")
}

func TestManager_DownloadUnknownPlugin(t *testing.T) {
	f := newFixture(t, &fakeSource{}, nil)

	_, err := f.manager.Download(context.Background(), "nope")
	require.ErrorIs(t, err, plugin.ErrPluginNotFound)
}

func TestManager_RunValidationShortCircuits(t *testing.T) {
	md := shellMetadata("p1", "run.sh")
	md.ExpectedArgs = []plugin.ArgSpec{{Name: "input-file", Type: plugin.ArgString, Required: true}}
	src := &fakeSource{metadata: []plugin.PluginMetadata{md}, scriptBody: "#!/bin/sh\nexit 0\n"}

	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, src, runner)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	_, err = f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	_, err = f.manager.Run(context.Background(), "p1", nil, nil, nil)

	var verr *plugin.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "input-file", verr.Arg)
	assert.Equal(t, 0, runner.runs, "no process may be spawned on a validation failure")

	p, err := f.manager.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusDownloaded, p.Status, "entity status stays unchanged")
}

func TestManager_RunNotDownloaded(t *testing.T) {
	src := &fakeSource{metadata: []plugin.PluginMetadata{shellMetadata("p1", "run.sh")}}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	_, err = f.manager.Run(context.Background(), "p1", nil, nil, nil)
	require.ErrorIs(t, err, plugin.ErrNotDownloaded)
}

func TestManager_RunFileMissingDemotes(t *testing.T) {
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{shellMetadata("p1", "run.sh")},
		scriptBody: "#!/bin/sh\nexit 0\n",
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	downloaded, err := f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	require.NoError(t, os.Remove(downloaded.LocalPath))

	_, err = f.manager.Run(context.Background(), "p1", nil, nil, nil)
	require.ErrorIs(t, err, plugin.ErrFileMissing)

	p, err := f.manager.Get("p1")
	require.NoError(t, err)
	assert.False(t, p.IsDownloaded, "missing file demotes the entity")
	assert.Equal(t, plugin.StatusFileMissing, p.Status)
}

func TestManager_ConcurrentRunReturnsBusy(t *testing.T) {
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{shellMetadata("p1", "run.sh")},
		scriptBody: "#!/bin/sh\nexit 0\n",
	}
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, src, runner)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	_, err = f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.manager.Run(context.Background(), "p1", nil, nil, nil)
		firstDone <- err
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	_, err = f.manager.Run(context.Background(), "p1", nil, nil, nil)
	require.ErrorIs(t, err, plugin.ErrBusy, "second concurrent run must fail fast")
	assert.Equal(t, 1, runner.runs, "a second process must never start")

	close(runner.release)
	require.NoError(t, <-firstDone)

	// The persisted document is intact and reflects the completed run.
	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, persisted, "p1")
	assert.Equal(t, plugin.StatusRunSucceeded, persisted["p1"].Status)
}

func TestManager_EndToEndRunFailure(t *testing.T) {
	md := shellMetadata("p1", "fail.sh")
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{md},
		scriptBody: "#!/bin/sh\necho 'bad data' >&2\nexit 2\n",
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	_, err = f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	var lines []ports.StreamLine
	outcome, err := f.manager.Run(context.Background(), "p1", nil, nil, func(line ports.StreamLine) {
		lines = append(lines, line)
	})

	var runErr *plugin.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, 2, runErr.ExitCode)
	assert.Contains(t, runErr.Excerpt, "bad data")
	assert.False(t, outcome.Success)

	require.Len(t, lines, 1)
	assert.Equal(t, ports.StreamStderr, lines[0].Stream)

	p, err := f.manager.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusRunFailed, p.Status)
	assert.Equal(t, 2, p.LastExitCode)

	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusRunFailed, persisted["p1"].Status)
	assert.Equal(t, 2, persisted["p1"].LastExitCode)
}

func TestManager_EndToEndRunSuccessWithArgs(t *testing.T) {
	md := shellMetadata("p1", "greet.sh")
	md.ExpectedArgs = []plugin.ArgSpec{
		{Name: "name", Type: plugin.ArgString, Required: true},
		{Name: "loud", Type: plugin.ArgBool},
	}
	src := &fakeSource{
		metadata:   []plugin.PluginMetadata{md},
		scriptBody: "#!/bin/sh\necho \"args: $*\"\n",
	}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)
	_, err = f.manager.Download(context.Background(), "p1")
	require.NoError(t, err)

	var lines []ports.StreamLine
	outcome, err := f.manager.Run(context.Background(), "p1",
		map[string]string{"name": "world"},
		map[string]bool{"loud": true},
		func(line ports.StreamLine) { lines = append(lines, line) })

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.Len(t, lines, 1)
	assert.Equal(t, "args: --name world --loud", lines[0].Text)

	p, err := f.manager.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusRunSucceeded, p.Status)
}

func TestManager_GetUnknown(t *testing.T) {
	f := newFixture(t, &fakeSource{}, nil)

	_, err := f.manager.Get("missing")
	require.ErrorIs(t, err, plugin.ErrPluginNotFound)
	assert.Empty(t, f.manager.ListAll())
}

func TestManager_ListAllSortedAndSnapshotted(t *testing.T) {
	src := &fakeSource{metadata: []plugin.PluginMetadata{
		shellMetadata("b", "b.sh"),
		shellMetadata("a", "a.sh"),
	}}
	f := newFixture(t, src, nil)
	_, err := f.manager.Discover(context.Background())
	require.NoError(t, err)

	list := f.manager.ListAll()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	// Mutating a snapshot must not leak into the authoritative table.
	list[0].Name = fmt.Sprintf("mutated-%d", time.Now().UnixNano())
	fresh, err := f.manager.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "Plugin a", fresh.Name)
}
