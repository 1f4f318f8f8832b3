// Package runner invokes external executables and reports their outcome.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// Outcome is the result of one external invocation.
type Outcome struct {
	Succeeded bool
	ExitCode  int
	Stdout    string
	Stderr    string
}

// ExitError reports a completed invocation that exited non-zero.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Err returns nil for a successful outcome and an *ExitError classified as an
// external tool failure otherwise.
func (o *Outcome) Err(name string) error {
	if o == nil || o.Succeeded {
		return nil
	}
	return errors.WithKind(errors.KindExternalTool, &ExitError{Name: name, ExitCode: o.ExitCode, Stderr: o.Stderr}, "")
}

// Runner runs an executable to completion. A non-nil error means the process
// could not be started; a started process always yields an Outcome.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Outcome, error)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts name with args, waits for it and captures both output streams.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Outcome, error) {
	slog.Debug("process_start", "name", name, "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	hideWindow(cmd)

	// Run copies both pipes to completion before it returns.
	err := cmd.Run()
	out := &Outcome{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.Succeeded = true
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		slog.Error("process_start_failed", "name", name, "error", err)
		return nil, errors.Wrap(err, fmt.Sprintf("failed to start %s", name))
	}

	if !out.Succeeded {
		slog.Warn("process_failed",
			"name", name,
			"exit_code", out.ExitCode,
			"stdout", strings.TrimSpace(out.Stdout),
			"stderr", strings.TrimSpace(out.Stderr))
	} else {
		slog.Debug("process_complete", "name", name)
	}
	return out, nil
}
