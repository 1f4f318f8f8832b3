package commands

import (
	"os"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// ensureDirectories creates every non-empty directory in dirs
func ensureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create directory "+dir)
		}
	}
	return nil
}
