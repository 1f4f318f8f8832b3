// Package configure applies host-level settings to a provisioned drive: its
// volume label and the scheduled task that starts the downloader on insert.
// Every operation runs under the retry supervisor.
package configure

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/retry"
	"github.com/sequence-downloader/setupusb/pkg/runner"
)

// Action names, as printed in retry progress lines.
const (
	ActionSetLabel    = "Set USB label"
	ActionInstallTask = "Install scheduled task"
	ActionRemoveTask  = "Remove scheduled task"
)

const (
	insertEventLog   = "Microsoft-Windows-DriverFrameworks-UserMode/Operational"
	insertEventQuery = "*[System[(EventID=2100 or EventID=2101 or EventID=2105 or EventID=2106)]]"
	powershellExe    = "powershell.exe"
	schtasksExe      = "schtasks.exe"
)

var (
	ErrLabelSetFailed       = stderrors.New("label set failed")
	ErrTriggerInstallFailed = stderrors.New("trigger install failed")
	ErrTriggerRemoveFailed  = stderrors.New("trigger remove failed")
)

// ExitCodeError is a configuration step whose tool exited non-zero. It matches
// its Reason with errors.Is and unwraps to the tool failure.
type ExitCodeError struct {
	Reason   error
	Msg      string
	ExitCode int
	Err      error
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("%s Exit code %d.", e.Msg, e.ExitCode)
}

func (e *ExitCodeError) Is(target error) bool {
	return target == e.Reason
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// Configurator runs the label and trigger commands.
type Configurator struct {
	runner     runner.Runner
	supervisor *retry.Supervisor
	stager     *payload.Stager
	helperDir  string
}

// New creates a Configurator. The stager's destination filesystem receives the
// trigger helper script under helperDir.
func New(r runner.Runner, supervisor *retry.Supervisor, stager *payload.Stager, helperDir string) *Configurator {
	return &Configurator{
		runner:     r,
		supervisor: supervisor,
		stager:     stager,
		helperDir:  helperDir,
	}
}

// HelperPath is where the trigger script is installed on the host.
func (c *Configurator) HelperPath() string {
	return filepath.Join(c.helperDir, payload.TriggerScript)
}

// SetLabel renames the volume on drive id.
func (c *Configurator) SetLabel(ctx context.Context, id, label string) error {
	command := fmt.Sprintf("Set-Volume -DriveLetter %s -NewFileSystemLabel '%s'", id, quotePS(label))

	return c.supervisor.Run(ctx, ActionSetLabel, func(ctx context.Context) error {
		err := c.exec(ctx, ErrLabelSetFailed, "Failed to set USB label.",
			powershellExe, "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", command)
		if err == nil {
			slog.Info("label_set", "drive", id, "label", label)
		}
		return err
	})
}

// InstallTrigger copies the helper script to the host and registers a task
// that runs it whenever a drive is connected. Re-running replaces the task.
func (c *Configurator) InstallTrigger(ctx context.Context, task, label string) error {
	helper := c.HelperPath()
	action := fmt.Sprintf(`%s -NoProfile -WindowStyle Hidden -ExecutionPolicy Bypass -File "%s" -UsbLabel "%s"`,
		powershellExe, helper, label)

	return c.supervisor.Run(ctx, ActionInstallTask, func(ctx context.Context) error {
		if err := c.stager.CopyEntry(payload.TriggerScript, helper); err != nil {
			if errors.KindOf(err) == errors.KindPackaging {
				return err
			}
			return errors.Wrap(err, "failed to install helper script")
		}

		err := c.exec(ctx, ErrTriggerInstallFailed, "Failed to install scheduled task.",
			schtasksExe,
			"/Create",
			"/TN", task,
			"/SC", "ONEVENT",
			"/EC", insertEventLog,
			"/MO", insertEventQuery,
			"/TR", action,
			"/F")
		if err == nil {
			slog.Info("trigger_installed", "task", task, "helper", helper, "label", label)
		}
		return err
	})
}

// RemoveTrigger deletes the task and the helper script. A task that is not
// registered is not an error.
func (c *Configurator) RemoveTrigger(ctx context.Context, task string) error {
	out, err := c.runner.Run(ctx, schtasksExe, "/Query", "/TN", task)
	if err != nil {
		return errors.WithKind(errors.KindExternalTool, err, "Failed to query scheduled task.")
	}
	if !out.Succeeded {
		slog.Info("trigger_not_installed", "task", task)
		c.removeHelper()
		return nil
	}

	err = c.supervisor.Run(ctx, ActionRemoveTask, func(ctx context.Context) error {
		return c.exec(ctx, ErrTriggerRemoveFailed, "Failed to remove scheduled task.",
			schtasksExe, "/Delete", "/TN", task, "/F")
	})
	if err != nil {
		return err
	}

	slog.Info("trigger_removed", "task", task)
	c.removeHelper()
	return nil
}

func (c *Configurator) removeHelper() {
	helper := c.HelperPath()
	if err := c.stager.Dest.Remove(helper); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		slog.Warn("helper_remove_failed", "path", helper, "error", err)
	}
}

// exec runs one tool invocation. Start failures and non-zero exits are both
// external tool failures and are retried.
func (c *Configurator) exec(ctx context.Context, reason error, msg, name string, args ...string) error {
	out, err := c.runner.Run(ctx, name, args...)
	if err != nil {
		return &errors.Error{Kind: errors.KindExternalTool, Msg: msg, Err: err}
	}
	if toolErr := out.Err(name); toolErr != nil {
		return &ExitCodeError{Reason: reason, Msg: msg, ExitCode: out.ExitCode, Err: toolErr}
	}
	return nil
}

// quotePS escapes s for a single-quoted PowerShell string.
func quotePS(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
