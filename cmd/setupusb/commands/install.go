package commands

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/sequence-downloader/setupusb/internal/config"
	"github.com/sequence-downloader/setupusb/pkg/configure"
	"github.com/sequence-downloader/setupusb/pkg/console"
	"github.com/sequence-downloader/setupusb/pkg/db"
	"github.com/sequence-downloader/setupusb/pkg/device"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/failure"
	appfsm "github.com/sequence-downloader/setupusb/pkg/fsm"
	"github.com/sequence-downloader/setupusb/pkg/host"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/retry"
	"github.com/sequence-downloader/setupusb/pkg/runner"
)

const (
	pauseMessage = "Press Enter to close..."
	adminMessage = "Please run this installer as Administrator."
)

var stdConsole = console.Std

// installOptions are the per-invocation flags that are not configuration.
type installOptions struct {
	Drive       string
	Yes         bool
	InstallTask bool
	NoPause     bool
	KeepSetup   bool
}

// environment is everything provisioning touches outside the process.
type environment struct {
	console    *console.Console
	runner     runner.Runner
	inspector  device.Inspector
	fs         afero.Fs
	payload    fs.FS
	elevated   func() (bool, error)
	removeSelf func(path string) error
	rootOf     func(id string) string
	timer      backoff.Timer

	exePath string
	exeDir  string
}

func platformEnvironment() (*environment, error) {
	exePath, exeDir, err := host.Executable()
	if err != nil {
		return nil, err
	}
	inspector, err := device.NewInspector()
	if err != nil {
		return nil, errors.Wrap(err, "device inspector init failed")
	}
	return &environment{
		console:    stdConsole(),
		runner:     runner.NewExecRunner(),
		inspector:  inspector,
		fs:         afero.NewOsFs(),
		payload:    payload.Embedded(),
		elevated:   host.IsElevated,
		removeSelf: host.RemoveSelf,
		rootOf:     device.RootOf,
		exePath:    exePath,
		exeDir:     exeDir,
	}, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts := installOptions{}
	opts.Drive, _ = flags.GetString("drive")
	opts.Yes, _ = flags.GetBool("yes")
	opts.InstallTask, _ = flags.GetBool("install-task")
	opts.NoPause, _ = flags.GetBool("no-pause")
	opts.KeepSetup, _ = flags.GetBool("keep-setup")

	env, err := platformEnvironment()
	if err != nil {
		return &reportedError{code: newTerminal(stdConsole(), nil, "", "").fail(err, "", !opts.NoPause)}
	}

	cfg, err := config.Load(env.exeDir)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		term := newTerminal(env.console, nil, env.exeDir, failure.DefaultFileName)
		return &reportedError{code: term.fail(errors.WithKind(errors.KindUsage, err, ""), "", !opts.NoPause)}
	}
	applyLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if code := provision(ctx, cfg, opts, env); code != exitSuccess {
		return &reportedError{code: code}
	}
	return nil
}

// provision runs one installation and returns the exit code. Every failure,
// whether inside the state machine or while setting it up, goes through the
// terminal.
func provision(ctx context.Context, cfg *config.Config, opts installOptions, env *environment) int {
	recorder := &failure.Recorder{Fs: env.fs, Now: time.Now}
	term := newTerminal(env.console, recorder, env.exeDir, cfg.ErrorFileName)
	pause := !opts.NoPause

	stateDir := cfg.StateDir
	if stateDir == "" {
		tmp, err := os.MkdirTemp("", "setupusb-fsm-*")
		if err != nil {
			return term.fail(errors.Wrap(err, "failed to create state directory"), "", pause)
		}
		defer os.RemoveAll(tmp)
		stateDir = tmp
	} else if err := ensureDirectories(stateDir); err != nil {
		return term.fail(err, "", pause)
	}

	history := &lazyHistory{path: cfg.HistoryPath}
	defer history.Close()

	manager, err := fsm.New(fsm.Config{DBPath: stateDir})
	if err != nil {
		return term.fail(errors.Wrap(err, "FSM manager failed"), "", pause)
	}
	defer manager.Shutdown(10 * time.Second)

	retryOpts := []retry.Option{retry.WithProgress(env.console.Out())}
	if env.timer != nil {
		retryOpts = append(retryOpts, retry.WithTimer(env.timer))
	}
	supervisor := retry.New(cfg.RetryAttempts, cfg.RetryDelay, retryOpts...)

	stager := &payload.Stager{Source: env.payload, Dest: env.fs}

	deps := appfsm.Deps{
		Validator:     device.NewValidator(env.inspector, device.NewPowerShellProber(env.runner)),
		Stager:        stager,
		Configurator:  configure.New(env.runner, supervisor, stager, cfg.HelperDir),
		Console:       env.console,
		Elevated:      env.elevated,
		RemoveSelf:    env.removeSelf,
		RootOf:        env.rootOf,
		PayloadFolder: cfg.PayloadFolder,
		ErrorFileName: cfg.ErrorFileName,
		MaxRetries:    cfg.FSMMaxRetries,
	}
	if cfg.HistoryPath != "" {
		deps.History = history
	}
	machine := appfsm.NewMachine(deps)

	req := &appfsm.ProvisioningRequest{
		RunID:                 uuid.NewString(),
		DriveHint:             opts.Drive,
		ExecutablePath:        env.exePath,
		ExecutableDir:         env.exeDir,
		Label:                 cfg.Label,
		TaskName:              cfg.Task,
		SkipConfirmation:      opts.Yes,
		InstallTrigger:        opts.InstallTask,
		PauseOnExit:           pause,
		DeleteSourceOnSuccess: !opts.KeepSetup,
	}

	slog.Info("provision_start", "run_id", req.RunID, "drive_hint", req.DriveHint, "label", req.Label,
		"install_trigger", req.InstallTrigger)

	res, err := machine.Execute(ctx, manager, req)
	if err != nil {
		return term.fail(err, "", pause)
	}

	switch {
	case res.Succeeded(), res.Canceled():
		return exitSuccess
	default:
		// an interrupted run skips the closing pause
		return term.fail(res.Err, res.DeviceRecordPath, pause && ctx.Err() == nil)
	}
}

var errHistoryUnavailable = errors.New(errors.KindBestEffort, "history unavailable")

// lazyHistory opens the run ledger on first use, so a run refused at the
// privilege check leaves nothing on the host.
type lazyHistory struct {
	path string
	once sync.Once
	repo *db.Repository
}

func (h *lazyHistory) open() (*db.Repository, error) {
	h.once.Do(func() { h.repo = openHistory(h.path) })
	if h.repo == nil {
		return nil, errHistoryUnavailable
	}
	return h.repo, nil
}

func (h *lazyHistory) Create(run *db.Run) error {
	repo, err := h.open()
	if err != nil {
		return err
	}
	return repo.Create(run)
}

func (h *lazyHistory) Update(run *db.Run) error {
	repo, err := h.open()
	if err != nil {
		return err
	}
	return repo.Update(run)
}

func (h *lazyHistory) UpdateStatus(id, status, errorMessage string) error {
	repo, err := h.open()
	if err != nil {
		return err
	}
	return repo.UpdateStatus(id, status, errorMessage)
}

// Close closes the ledger if it was opened.
func (h *lazyHistory) Close() error {
	if h.repo == nil {
		return nil
	}
	return h.repo.Close()
}

// openHistory opens the run ledger. History is best-effort: any failure is
// logged and provisioning continues without it.
func openHistory(path string) *db.Repository {
	if path == "" {
		return nil
	}
	if err := ensureDirectories(filepath.Dir(path)); err != nil {
		slog.Warn("history_unavailable", "path", path, "error", err)
		return nil
	}
	repo, err := db.NewRepository(path)
	if err != nil {
		slog.Warn("history_unavailable", "path", path, "error", err)
		return nil
	}
	return repo
}
