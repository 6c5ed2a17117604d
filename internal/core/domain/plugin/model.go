package plugin

// ScriptType identifies how a plugin script is executed
type ScriptType string

const (
	// ScriptInterpreted scripts run through the configured interpreter
	ScriptInterpreted ScriptType = "interpreted"
	// ScriptShell scripts run directly and must carry execute permission
	ScriptShell ScriptType = "shell"
)

// ArgType is the closed set of argument types a plugin may declare
type ArgType string

const (
	ArgString   ArgType = "string"
	ArgInteger  ArgType = "integer"
	ArgFilePath ArgType = "file-path"
	ArgBool     ArgType = "boolean-flag"
)

// Status reflects the outcome of the most recently completed lifecycle operation
type Status string

const (
	StatusAvailable       Status = "available"
	StatusDownloading     Status = "downloading"
	StatusDownloaded      Status = "downloaded"
	StatusDownloadFailed  Status = "download_failed"
	StatusFileMissing     Status = "file_missing"
	StatusRunning         Status = "running"
	StatusRunSucceeded    Status = "run_succeeded"
	StatusRunFailed       Status = "run_failed"
	StatusUnsupportedType Status = "unsupported_script_type"
	StatusExecPermission  Status = "exec_permission_error"
)

// ArgSpec declares one accepted plugin parameter
type ArgSpec struct {
	Name        string  `json:"name"`
	Type        ArgType `json:"type"`
	Description string  `json:"description"`
	Required    bool    `json:"required"`
	Default     string  `json:"default,omitempty"`
}

// PluginMetadata carries the descriptive fields of a plugin as published by
// the source, without any local download or runtime state.
type PluginMetadata struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Version        string     `json:"version"`
	Author         string     `json:"author"`
	ScriptType     ScriptType `json:"script_type"`
	SourceLocator  string     `json:"source_locator"`
	ScriptFilename string     `json:"script_filename"`
	ExpectedArgs   []ArgSpec  `json:"expected_args"`
}

// Plugin is the local entity for a discoverable plugin: the published
// metadata plus the download state and last run status tracked on this
// machine. ID is the sole identity key and is immutable after creation.
type Plugin struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Version        string     `json:"version"`
	Author         string     `json:"author"`
	ScriptType     ScriptType `json:"script_type"`
	SourceLocator  string     `json:"source_locator"`
	ScriptFilename string     `json:"script_filename"`
	ExpectedArgs   []ArgSpec  `json:"expected_args"`

	LocalPath    string `json:"local_path,omitempty"`
	IsDownloaded bool   `json:"is_downloaded"`

	// Status is persisted for diagnostics but re-verified at load time,
	// never trusted verbatim from disk.
	Status       Status `json:"status,omitempty"`
	LastExitCode int    `json:"last_exit_code,omitempty"`

	// FilenameChanged annotates a demotion caused by the source publishing
	// a different script filename for an already-downloaded plugin.
	FilenameChanged bool `json:"filename_changed,omitempty"`
}

// NewPlugin creates a freshly discovered plugin from source metadata.
func NewPlugin(md PluginMetadata) *Plugin {
	return &Plugin{
		ID:             md.ID,
		Name:           md.Name,
		Description:    md.Description,
		Version:        md.Version,
		Author:         md.Author,
		ScriptType:     md.ScriptType,
		SourceLocator:  md.SourceLocator,
		ScriptFilename: md.ScriptFilename,
		ExpectedArgs:   cloneArgs(md.ExpectedArgs),
		Status:         StatusAvailable,
	}
}

// Metadata returns the descriptive fields of the plugin as source metadata.
func (p *Plugin) Metadata() PluginMetadata {
	return PluginMetadata{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Version:        p.Version,
		Author:         p.Author,
		ScriptType:     p.ScriptType,
		SourceLocator:  p.SourceLocator,
		ScriptFilename: p.ScriptFilename,
		ExpectedArgs:   cloneArgs(p.ExpectedArgs),
	}
}

// Clone returns a deep copy of the plugin so callers can hand out read-only
// snapshots without exposing the authoritative entity.
func (p *Plugin) Clone() *Plugin {
	c := *p
	c.ExpectedArgs = cloneArgs(p.ExpectedArgs)
	return &c
}

// Demote clears the download state and records why. Used when the local
// artifact is missing or has been invalidated by new metadata.
func (p *Plugin) Demote(status Status) {
	p.IsDownloaded = false
	p.LocalPath = ""
	p.Status = status
}

// HealDownloadState enforces the invariant that a downloaded plugin has an
// existing file at its local path. Returns true if the entity was demoted.
func (p *Plugin) HealDownloadState(fileExists func(string) bool) bool {
	if !p.IsDownloaded {
		return false
	}
	if p.LocalPath != "" && fileExists(p.LocalPath) {
		return false
	}
	p.Demote(StatusFileMissing)
	return true
}

func cloneArgs(args []ArgSpec) []ArgSpec {
	if args == nil {
		return nil
	}
	out := make([]ArgSpec, len(args))
	copy(out, args)
	return out
}
