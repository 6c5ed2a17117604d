package ports

import (
	"context"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

// Stream tags a line of child-process output with its channel of origin.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// StreamLine is one line of output from a running plugin.
type StreamLine struct {
	Stream Stream
	Text   string
}

// OutputSink receives plugin output line-by-line as it arrives. Delivery is
// serialized: the runner never invokes the sink from two goroutines at once.
type OutputSink func(line StreamLine)

// RunOutcome is the classified result of a completed plugin run.
type RunOutcome struct {
	Success  bool
	ExitCode int
}

// Runner spawns a plugin's script as a child process, streams its output and
// classifies the exit. The runner does not mutate the plugin entity or
// persist anything; that is the manager's job.
type Runner interface {
	Run(ctx context.Context, p *plugin.Plugin, argv []string, sink OutputSink) (RunOutcome, error)
}
