//go:build windows

package host

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// RemoveSelf schedules deletion of path once this process has exited. A
// running image cannot be deleted on Windows, so a detached shell waits about a
// second and deletes it.
func RemoveSelf(path string) error {
	cmd := exec.Command("cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       fmt.Sprintf(`cmd.exe /c ping 127.0.0.1 -n 2 > nul & del "%s"`, path),
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	if err := cmd.Start(); err != nil {
		return errors.WithKind(errors.KindBestEffort, err, "failed to schedule installer removal")
	}
	slog.Info("self_remove_scheduled", "path", path, "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}
