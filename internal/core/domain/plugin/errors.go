package plugin

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra payload beyond the
// plugin id the caller already holds.
var (
	// ErrPluginNotFound indicates the id is unknown to the store
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrBusy indicates another lifecycle operation is in flight for the plugin
	ErrBusy = errors.New("plugin is busy with another operation")
	// ErrNotDownloaded indicates a run was requested before a download
	ErrNotDownloaded = errors.New("plugin not downloaded")
	// ErrFileMissing indicates the downloaded artifact vanished from disk
	ErrFileMissing = errors.New("plugin script file missing")
	// ErrUnsupportedScriptType indicates a script type the runner cannot execute
	ErrUnsupportedScriptType = errors.New("unsupported script type")
	// ErrExecPermission indicates execute permission could not be granted
	ErrExecPermission = errors.New("could not make script executable")
)

// ValidationError reports the first argument that failed marshalling.
type ValidationError struct {
	Arg    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Reason)
}

// DownloadError reports a failed materialization of a plugin script.
type DownloadError struct {
	PluginID string
	Reason   string
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed for plugin %s: %s: %v", e.PluginID, e.Reason, e.Err)
	}
	return fmt.Sprintf("download failed for plugin %s: %s", e.PluginID, e.Reason)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SpawnError reports that the child process could not be started at all,
// distinct from a process that started and exited non-zero.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// RunError reports a completed run that exited non-zero. Excerpt carries the
// captured stderr text, falling back to stdout, so the caller can render the
// failure without a further lookup.
type RunError struct {
	PluginID string
	ExitCode int
	Excerpt  string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("plugin %s failed with exit code %d: %s", e.PluginID, e.ExitCode, e.Excerpt)
}
