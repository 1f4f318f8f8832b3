package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sequence-downloader/setupusb/pkg/console"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/failure"
	"github.com/sequence-downloader/setupusb/pkg/host"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// newRecorder builds the recorder of terminals created without one.
var newRecorder = failure.NewRecorder

// reportedError carries an exit code for a failure the command already
// reported to the operator.
type reportedError struct {
	code int
}

func (e *reportedError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// terminal is the single place fatal errors end up: a failure record next to
// the installer and, once known, on the drive; the message on stderr; the
// closing pause.
type terminal struct {
	console       *console.Console
	recorder      *failure.Recorder
	fallbackDir   string
	errorFileName string
}

func newTerminal(c *console.Console, recorder *failure.Recorder, fallbackDir, errorFileName string) *terminal {
	if recorder == nil {
		recorder = newRecorder()
	}
	if fallbackDir == "" {
		if _, dir, err := host.Executable(); err == nil {
			fallbackDir = dir
		}
	}
	if errorFileName == "" {
		errorFileName = failure.DefaultFileName
	}
	return &terminal{
		console:       c,
		recorder:      recorder,
		fallbackDir:   fallbackDir,
		errorFileName: errorFileName,
	}
}

// fail reports err and returns the failure exit code.
func (t *terminal) fail(err error, deviceRecordPath string, pause bool) int {
	fallback := ""
	if t.fallbackDir != "" {
		fallback = filepath.Join(t.fallbackDir, t.errorFileName)
	}

	written := t.recorder.Write(err, deviceRecordPath, fallback)
	slog.Error("setup_failed", "kind", errors.KindOf(err).String(), "error", err, "records", written)

	t.console.Errorln(err.Error())
	if pause {
		t.console.Pause(context.Background(), pauseMessage)
	}
	return exitFailure
}
