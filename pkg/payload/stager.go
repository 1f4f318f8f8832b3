package payload

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/security"
)

// ErrMissingSource is returned when a manifest entry has no embedded file.
// The installer was built without its payload; nothing is skipped.
var ErrMissingSource = errors.New(errors.KindPackaging, "missing embedded resource")

// Stager copies embedded payload files onto a destination filesystem.
type Stager struct {
	Source fs.FS
	Dest   afero.Fs
}

// NewStager creates a stager reading the compiled-in payload and writing to
// the host filesystem.
func NewStager() *Stager {
	return &Stager{
		Source: Embedded(),
		Dest:   afero.NewOsFs(),
	}
}

// Stage writes every manifest entry under targetDir, in order. Existing files
// are truncated, so staging the same drive twice leaves the same contents.
func (s *Stager) Stage(ctx context.Context, manifest Manifest, targetDir string) error {
	if err := s.Dest.MkdirAll(targetDir, 0755); err != nil {
		return errors.WithKind(errors.KindDevice, err,
			fmt.Sprintf("Failed to create payload folder '%s'.", targetDir))
	}

	for _, entry := range manifest {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := security.ValidatePath(entry.Destination); err != nil {
			return errors.WithKind(errors.KindPackaging, err, "")
		}
		if err := s.CopyEntry(entry.Source, filepath.Join(targetDir, filepath.FromSlash(entry.Destination))); err != nil {
			return err
		}
	}

	slog.Info("payload_staged", "target", targetDir, "entries", len(manifest))
	return nil
}

// CopyEntry streams one embedded file to dest, creating parent directories.
func (s *Stager) CopyEntry(source, dest string) error {
	in, err := s.Source.Open(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Error("payload_source_missing", "source", source)
			return &errors.Error{
				Kind: errors.KindPackaging,
				Msg:  fmt.Sprintf("Missing embedded resource: %s", source),
				Err:  ErrMissingSource,
			}
		}
		return errors.Wrap(err, "failed to open embedded "+source)
	}
	defer in.Close()

	if err := s.Dest.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent dir")
	}

	out, err := s.Dest.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create "+dest)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return errors.Wrap(err, "failed to write "+dest)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "failed to close "+dest)
	}

	slog.Debug("stage_entry_written", "source", source, "path", dest, "bytes", n)
	return nil
}
