// Package source provides the plugin source implementations: a simulated
// local-directory source and a plain HTTP source. Both publish a
// manifest.json listing plugin metadata and can materialize a script's bytes
// at a target path.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

const manifestFileName = "manifest.json"

// LocalDirSource simulates a remote plugin source with a directory on disk:
// metadata comes from a manifest.json and materialization is a file copy.
// Locators use the form "local://<filename>" relative to the source dir.
type LocalDirSource struct {
	dir string
}

// NewLocalDirSource creates a source over the given directory.
func NewLocalDirSource(dir string) *LocalDirSource {
	return &LocalDirSource{dir: dir}
}

// FetchMetadata reads the manifest from the source directory.
func (s *LocalDirSource) FetchMetadata(ctx context.Context) ([]plugin.PluginMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read source manifest: %w", err)
	}

	var metadata []plugin.PluginMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse source manifest: %w", err)
	}

	return metadata, nil
}

// Materialize copies the script file named by the locator to targetPath.
func (s *LocalDirSource) Materialize(ctx context.Context, md plugin.PluginMetadata, targetPath string) error {
	name := strings.TrimPrefix(md.SourceLocator, "local://")
	if name == "" {
		return fmt.Errorf("plugin %s has an empty source locator", md.ID)
	}

	src, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("source script not available: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy script: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to finish writing script: %w", err)
	}

	if md.ScriptType == plugin.ScriptShell && runtime.GOOS != "windows" {
		if err := os.Chmod(targetPath, 0o755); err != nil {
			log.Warn().Err(err).Str("path", targetPath).Msg("could not set execute permission on shell script")
		}
	}

	return nil
}

// Seed populates the source directory with a manifest and sample plugin
// scripts if it is empty, so a fresh install has something to discover.
func (s *LocalDirSource) Seed() error {
	if _, err := os.Stat(filepath.Join(s.dir, manifestFileName)); err == nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sample source directory: %w", err)
	}

	samples := []struct {
		filename string
		body     string
		mode     os.FileMode
	}{
		{
			filename: "hello.sh",
			body:     "#!/bin/sh\necho 'Hello from the sample shell plugin'\nls -la\n",
			mode:     0o755,
		},
		{
			filename: "process_data.py",
			body: `import argparse
import sys

print("Process Data plugin started, argv:", sys.argv[1:])

parser = argparse.ArgumentParser(description="Processes some data.")
parser.add_argument("--input-file", required=True)
parser.add_argument("--output-file", default="output.txt")
parser.add_argument("--iterations", type=int, default=1)
parser.add_argument("--verbose", action="store_true")
args = parser.parse_args()

for i in range(args.iterations):
    if args.verbose:
        print(f"iteration {i + 1}/{args.iterations}")

try:
    line = input("stdin check: ")
    print(f"read from stdin: {line!r}")
except EOFError:
    print("stdin closed (EOF), as expected")

with open(args.output_file, "w") as f:
    f.write(f"processed {args.input_file} with {args.iterations} iterations\n")

print(f"done, wrote {args.output_file}")
`,
			mode: 0o644,
		},
	}

	for _, sample := range samples {
		path := filepath.Join(s.dir, sample.filename)
		if err := os.WriteFile(path, []byte(sample.body), sample.mode); err != nil {
			return fmt.Errorf("failed to write sample script %s: %w", sample.filename, err)
		}
	}

	manifest := []plugin.PluginMetadata{
		{
			ID:             "sh_hello_001",
			Name:           "Hello (Shell)",
			Description:    "Prints a greeting and lists the plugin directory.",
			Version:        "1.0",
			Author:         "pluginforge",
			ScriptType:     plugin.ScriptShell,
			SourceLocator:  "local://hello.sh",
			ScriptFilename: "hello.sh",
		},
		{
			ID:             "py_process_002",
			Name:           "Process Data (Python)",
			Description:    "Processes an input file and writes a summary.",
			Version:        "1.1",
			Author:         "pluginforge",
			ScriptType:     plugin.ScriptInterpreted,
			SourceLocator:  "local://process_data.py",
			ScriptFilename: "process_data.py",
			ExpectedArgs: []plugin.ArgSpec{
				{Name: "input-file", Type: plugin.ArgFilePath, Description: "Input data file path", Required: true},
				{Name: "output-file", Type: plugin.ArgString, Description: "Output file path", Default: "output.txt"},
				{Name: "iterations", Type: plugin.ArgInteger, Description: "Number of iterations", Default: "1"},
				{Name: "verbose", Type: plugin.ArgBool, Description: "Print per-iteration progress"},
			},
		},
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sample manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, manifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write sample manifest: %w", err)
	}

	log.Info().Str("dir", s.dir).Msg("seeded sample plugin source")
	return nil
}
