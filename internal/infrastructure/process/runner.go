// Package process spawns plugin scripts as child processes and streams
// their output.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pluginforge.io/cli/internal/core/domain/plugin"
	"pluginforge.io/cli/internal/core/ports"
)

// maxExcerptLen bounds the captured output carried in a RunError.
const maxExcerptLen = 4096

// Runner executes plugin scripts with the script's directory as the working
// directory. Interpreted scripts run through the configured interpreter;
// shell scripts run directly. Stdin is closed immediately after spawn so a
// plugin that reads input observes end-of-input instead of hanging.
type Runner struct {
	interpreter string
}

// NewRunner creates a runner using the given interpreter executable for
// interpreted scripts.
func NewRunner(interpreter string) *Runner {
	return &Runner{interpreter: interpreter}
}

// Run spawns the plugin's script, forwards its output line-by-line to sink
// as it arrives, waits for completion and classifies the exit code. Both
// output streams are read concurrently and funneled through a single
// channel, so sink is only ever invoked from one goroutine and interleaved
// output keeps its temporal order.
func (r *Runner) Run(ctx context.Context, p *plugin.Plugin, argv []string, sink ports.OutputSink) (ports.RunOutcome, error) {
	if !p.IsDownloaded || p.LocalPath == "" {
		return ports.RunOutcome{}, plugin.ErrNotDownloaded
	}
	if _, err := os.Stat(p.LocalPath); err != nil {
		return ports.RunOutcome{}, plugin.ErrFileMissing
	}

	scriptDir := filepath.Dir(p.LocalPath)
	scriptName := filepath.Base(p.LocalPath)

	var name string
	var args []string
	switch p.ScriptType {
	case plugin.ScriptInterpreted:
		name = r.interpreter
		args = append([]string{scriptName}, argv...)
	case plugin.ScriptShell:
		if err := ensureExecutable(p.LocalPath); err != nil {
			return ports.RunOutcome{}, fmt.Errorf("%w: %v", plugin.ErrExecPermission, err)
		}
		name = "./" + scriptName
		args = argv
	default:
		return ports.RunOutcome{}, fmt.Errorf("%w: %q", plugin.ErrUnsupportedScriptType, p.ScriptType)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = scriptDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ports.RunOutcome{}, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return ports.RunOutcome{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return ports.RunOutcome{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	log.Debug().
		Str("plugin_id", p.ID).
		Str("command", name).
		Strs("args", args).
		Str("dir", scriptDir).
		Msg("spawning plugin process")

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return ports.RunOutcome{}, &plugin.SpawnError{Command: name, Err: err}
	}

	// No interactive input is supported: signal end-of-input right away so
	// a plugin blocking on a read returns instead of hanging.
	stdin.Close()

	lines := make(chan ports.StreamLine, 64)
	var stdoutText, stderrText strings.Builder

	g := new(errgroup.Group)
	g.Go(func() error {
		return forwardLines(stdout, ports.StreamStdout, &stdoutText, lines)
	})
	g.Go(func() error {
		return forwardLines(stderr, ports.StreamStderr, &stderrText, lines)
	})
	go func() {
		g.Wait()
		close(lines)
	}()

	// Single consumer: sink delivery is serialized here regardless of how
	// the two readers interleave.
	for line := range lines {
		if sink != nil {
			sink(line)
		}
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Str("plugin_id", p.ID).Msg("error reading plugin output")
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return ports.RunOutcome{}, &plugin.SpawnError{Command: name, Err: waitErr}
		}
	}

	if exitCode != 0 {
		return ports.RunOutcome{Success: false, ExitCode: exitCode}, &plugin.RunError{
			PluginID: p.ID,
			ExitCode: exitCode,
			Excerpt:  failureExcerpt(stderrText.String(), stdoutText.String()),
		}
	}

	return ports.RunOutcome{Success: true, ExitCode: 0}, nil
}

// forwardLines scans one output stream line-by-line, recording a transcript
// for error excerpts and sending each tagged line into the shared channel.
func forwardLines(r io.Reader, stream ports.Stream, transcript *strings.Builder, lines chan<- ports.StreamLine) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		text := scanner.Text()
		if transcript.Len() < maxExcerptLen {
			transcript.WriteString(text)
			transcript.WriteByte('\n')
		}
		lines <- ports.StreamLine{Stream: stream, Text: text}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s scanner error: %w", stream, err)
	}
	return nil
}

// failureExcerpt picks the text reported alongside a non-zero exit: stderr
// if any was captured, then stdout, then a generic note.
func failureExcerpt(stderrText, stdoutText string) string {
	if s := strings.TrimSpace(stderrText); s != "" {
		return truncate(s, maxExcerptLen)
	}
	if s := strings.TrimSpace(stdoutText); s != "" {
		return truncate(s, maxExcerptLen)
	}
	return "no output captured"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ensureExecutable verifies the script has execute permission, granting it
// if needed. Windows has no execute bit, so this is a no-op there.
func ensureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode()&0o100 != 0 {
		return nil
	}
	return os.Chmod(path, 0o755)
}
