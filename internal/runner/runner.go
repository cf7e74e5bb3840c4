// Package runner executes external toolchain commands, streaming their
// combined output into a log sink and optionally the terminal.
package runner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// execCommand is swapped out in tests.
var execCommand = exec.Command

// Options controls how a command is run.
type Options struct {
	// Dir is the working directory for the command, if set.
	Dir string

	// ExtraEnv entries are appended to the current process environment.
	ExtraEnv map[string]string

	// LogSink receives the combined stdout/stderr of the command.
	LogSink io.Writer

	// Terminal additionally streams output to the terminal.
	Terminal bool
}

// Run executes the command and waits for it to finish. A non-zero exit is
// returned as an error carrying the command line and exit code.
func Run(name string, args []string, opts Options) error {
	cmd := execCommand(name, args...)
	cmd.Dir = opts.Dir

	if len(opts.ExtraEnv) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.ExtraEnv {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var sinks []io.Writer
	if opts.LogSink != nil {
		sinks = append(sinks, opts.LogSink)
	}
	if opts.Terminal {
		sinks = append(sinks, os.Stdout)
	}
	if len(sinks) > 0 {
		out := io.MultiWriter(sinks...)
		cmd.Stdout = out
		cmd.Stderr = out
	}

	slog.Debug("Running command", "cmd", name+" "+strings.Join(args, " "), "dir", opts.Dir)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("command %q exited with code %d", name+" "+strings.Join(args, " "), exitErr.ExitCode())
		}

		return fmt.Errorf("failed to run %q: %w", name, err)
	}

	return nil
}
