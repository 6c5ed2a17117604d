package plugin

// Reconcile merges freshly fetched source metadata into the local plugin
// map. Unknown ids become new entities with status available; known ids have
// every descriptive field overwritten from the source record. A changed
// script filename invalidates a previously downloaded artifact and demotes
// the entity; an unchanged filename preserves download state, subject to the
// file-existence re-check supplied by the caller. Local ids absent from the
// source list are retained unchanged: stale entries are never deleted here.
func Reconcile(local map[string]*Plugin, remote []PluginMetadata, fileExists func(string) bool) map[string]*Plugin {
	if local == nil {
		local = make(map[string]*Plugin, len(remote))
	}

	for _, md := range remote {
		existing, ok := local[md.ID]
		if !ok {
			local[md.ID] = NewPlugin(md)
			continue
		}

		existing.Name = md.Name
		existing.Description = md.Description
		existing.Version = md.Version
		existing.Author = md.Author
		existing.ScriptType = md.ScriptType
		existing.SourceLocator = md.SourceLocator
		existing.ExpectedArgs = cloneArgs(md.ExpectedArgs)

		if existing.ScriptFilename != md.ScriptFilename && existing.IsDownloaded {
			// The previously fetched artifact no longer matches the
			// published filename.
			existing.Demote(StatusAvailable)
			existing.FilenameChanged = true
		}
		existing.ScriptFilename = md.ScriptFilename

		existing.HealDownloadState(fileExists)
	}

	return local
}
