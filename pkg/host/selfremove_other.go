//go:build !windows

package host

import (
	"log/slog"
	"os"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// RemoveSelf deletes path. Unix allows unlinking a running binary.
func RemoveSelf(path string) error {
	if err := os.Remove(path); err != nil {
		return errors.WithKind(errors.KindBestEffort, err, "failed to remove installer")
	}
	slog.Info("self_removed", "path", path)
	return nil
}
