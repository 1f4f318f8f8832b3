//go:build windows

package host

import (
	"golang.org/x/sys/windows"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// IsElevated reports whether the process token carries administrator rights.
func IsElevated() (bool, error) {
	t, err := windows.OpenCurrentProcessToken()
	if err != nil {
		return false, errors.Wrap(err, "failed to open process token")
	}
	defer t.Close()
	return t.IsElevated(), nil
}
