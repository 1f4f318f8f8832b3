// Package host wraps the bits of the local machine the installer touches:
// privilege level, well-known directories and the installer binary itself.
package host

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// AppDirName names the per-machine directory holding the trigger helper and
// run history.
const AppDirName = "SequenceDownloaderUSB"

// ConfigDir returns the per-machine data directory, %ProgramData%\SequenceDownloaderUSB
// on Windows.
func ConfigDir() string {
	if runtime.GOOS == "windows" {
		base := os.Getenv("ProgramData")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, AppDirName)
	}
	return filepath.Join("/var/lib", AppDirName)
}

// Executable returns the resolved path of the running binary and its directory.
func Executable() (string, string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, filepath.Dir(exe), nil
}
