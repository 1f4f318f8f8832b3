// Package failure writes SETUP_ERROR.txt records describing why provisioning
// stopped.
package failure

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// DefaultFileName is the record written next to the installer and on the drive.
const DefaultFileName = "SETUP_ERROR.txt"

const timestampLayout = "2006-01-02 15:04:05"

// Recorder writes failure records. Each target is attempted independently and
// write errors are only logged.
type Recorder struct {
	Fs  afero.Fs
	Now func() time.Time
}

// NewRecorder creates a recorder on the host filesystem.
func NewRecorder() *Recorder {
	return &Recorder{Fs: afero.NewOsFs(), Now: time.Now}
}

// Format renders the record for err.
func (r *Recorder) Format(err error) string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s ERROR\n", now().Format(timestampLayout))
	if err == nil {
		b.WriteString("unknown error\n")
		return b.String()
	}
	b.WriteString(strings.TrimSpace(err.Error()))
	b.WriteString("\n")
	for _, cause := range errors.Causes(err) {
		fmt.Fprintf(&b, "cause: %s\n", strings.TrimSpace(cause))
	}
	return b.String()
}

// Write records err at every non-empty path and returns the paths written.
func (r *Recorder) Write(err error, paths ...string) []string {
	body := []byte(r.Format(err))

	var written []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if werr := r.writeOne(p, body); werr != nil {
			slog.Warn("failure_record_write_failed", "path", p, "error", werr)
			continue
		}
		slog.Info("failure_record_written", "path", p)
		written = append(written, p)
	}
	return written
}

func (r *Recorder) writeOne(path string, body []byte) error {
	if err := r.Fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create record dir")
	}
	return afero.WriteFile(r.Fs, path, body, 0644)
}
