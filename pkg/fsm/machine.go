// Package fsm implements the USB provisioning workflow on top of the
// superfly/fsm library. A run moves through start, validate, confirm, stage,
// configure, cleanup and done; any terminal error aborts it into failed.
package fsm

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/superfly/fsm"

	"github.com/sequence-downloader/setupusb/pkg/configure"
	"github.com/sequence-downloader/setupusb/pkg/db"
	"github.com/sequence-downloader/setupusb/pkg/device"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/failure"
	"github.com/sequence-downloader/setupusb/pkg/payload"
)

// Console is the operator-facing surface used by the handlers.
type Console interface {
	Printf(format string, args ...any)
	Println(msg string)
	Confirm(ctx context.Context, prompt string) bool
	Pause(ctx context.Context, msg string)
}

// History records runs. Failures to record are logged, never fatal. A run is
// recorded only once it passed the privilege check.
type History interface {
	Create(run *db.Run) error
	Update(run *db.Run) error
	UpdateStatus(id, status, errorMessage string) error
}

// Deps are the collaborators of a Machine. Validator, Stager, Configurator and
// Console are required.
type Deps struct {
	Validator    *device.Validator
	Stager       *payload.Stager
	Configurator *configure.Configurator
	Console      Console

	// History may be nil.
	History History

	// Elevated defaults to reporting false.
	Elevated func() (bool, error)
	// RemoveSelf deletes the installer binary after success. Nil disables it.
	RemoveSelf func(path string) error
	// RootOf maps a drive identifier to its root path; defaults to device.RootOf.
	RootOf func(id string) string

	Manifest      payload.Manifest
	PayloadFolder string
	ErrorFileName string
	MaxRetries    int
}

// Machine holds dependencies for FSM transitions and the outcome of every run
// it has executed.
type Machine struct {
	validator     *device.Validator
	stager        *payload.Stager
	configurator  *configure.Configurator
	console       Console
	history       History
	elevated      func() (bool, error)
	removeSelf    func(path string) error
	rootOf        func(id string) string
	manifest      payload.Manifest
	payloadFolder string
	errorFileName string
	maxRetries    int

	mu       sync.Mutex
	results  map[string]*Result
	recorded map[string]bool
	callers  map[string]context.Context
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(d Deps) *Machine {
	m := &Machine{
		validator:     d.Validator,
		stager:        d.Stager,
		configurator:  d.Configurator,
		console:       d.Console,
		history:       d.History,
		elevated:      d.Elevated,
		removeSelf:    d.RemoveSelf,
		rootOf:        d.RootOf,
		manifest:      d.Manifest,
		payloadFolder: d.PayloadFolder,
		errorFileName: d.ErrorFileName,
		maxRetries:    d.MaxRetries,
		results:       make(map[string]*Result),
		recorded:      make(map[string]bool),
		callers:       make(map[string]context.Context),
	}
	if m.elevated == nil {
		m.elevated = func() (bool, error) { return false, nil }
	}
	if m.rootOf == nil {
		m.rootOf = device.RootOf
	}
	if m.manifest == nil {
		m.manifest = payload.DefaultManifest()
	}
	if m.payloadFolder == "" {
		m.payloadFolder = payload.DefaultFolder
	}
	if m.errorFileName == "" {
		m.errorFileName = failure.DefaultFileName
	}
	if m.maxRetries < 1 {
		m.maxRetries = 1
	}
	return m
}

// Register registers the provisioning FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ProvisioningRequest, ProvisionResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ProvisioningRequest, ProvisionResponse](manager, "usb-provision").
		Start(StateStart, m.handleStart).
		To(StateValidate, m.handleValidate).
		To(StateConfirm, m.handleConfirm).
		To(StateStage, m.handleStage).
		To(StateConfigure, m.handleConfigure).
		To(StateCleanup, m.handleCleanup).
		To(StateDone, m.handleDone).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Execute registers the workflow on manager, runs req to completion and
// returns its outcome. The returned error covers only failures to drive the
// FSM itself; a failed run is reported through Result.
func (m *Machine) Execute(ctx context.Context, manager *fsm.Manager, req *ProvisioningRequest) (*Result, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	start, _, err := m.Register(ctx, manager)
	if err != nil {
		return nil, err
	}

	m.track(ctx, req)
	defer m.untrack(req.RunID)

	version, err := start(ctx, req.RunID, fsm.NewRequest(req, &ProvisionResponse{}))
	if err != nil {
		return nil, errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "run_id", req.RunID, "version", version)

	waitErr := manager.Wait(ctx, version)

	res := m.Result(req.RunID)
	if res.Status == "" {
		// The run ended without reaching a handler that settled it
		err := waitErr
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = errors.New(errors.KindUnknown, "Setup ended unexpectedly.")
		} else if ctx.Err() != nil {
			err = errors.WithKind(errors.KindUnknown, err, interruptedMessage)
		}
		m.settle(req.RunID, StatusFailed, err)
		res = m.Result(req.RunID)
	}

	slog.Info("fsm_finished", "run_id", req.RunID, "status", res.Status, "wait_error", waitErr)
	return res, nil
}

// Result returns a copy of the recorded outcome of runID.
func (m *Machine) Result(runID string) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.results[runID]
	if !ok {
		return &Result{RunID: runID}
	}
	out := *res
	return &out
}

func (m *Machine) track(ctx context.Context, req *ProvisioningRequest) {
	m.mu.Lock()
	m.results[req.RunID] = &Result{RunID: req.RunID}
	m.callers[req.RunID] = ctx
	m.mu.Unlock()
}

func (m *Machine) untrack(runID string) {
	m.mu.Lock()
	delete(m.callers, runID)
	m.mu.Unlock()
}

// interruptible derives a context from a handler's ctx that is also canceled
// when the caller of Execute for runID gives up.
func (m *Machine) interruptible(ctx context.Context, runID string) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	caller := m.callers[runID]
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	if caller == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// record adds the run to the history.
func (m *Machine) record(req *ProvisioningRequest) {
	if m.history == nil {
		return
	}
	run := &db.Run{
		ID:       req.RunID,
		Label:    req.Label,
		TaskName: req.TaskName,
		Status:   db.StatusStarted,
	}
	if err := m.history.Create(run); err != nil {
		slog.Warn("history_record_failed", "run_id", req.RunID, "error", err)
		return
	}

	m.mu.Lock()
	m.recorded[req.RunID] = true
	m.mu.Unlock()
}

func (m *Machine) isRecorded(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorded[runID]
}

// resolved stores the drive and its failure record location once known.
func (m *Machine) resolved(runID, id string) string {
	recordPath := filepath.Join(m.rootOf(id), m.payloadFolder, m.errorFileName)

	m.mu.Lock()
	if res, ok := m.results[runID]; ok {
		res.Drive = id
		res.DeviceRecordPath = recordPath
	}
	m.mu.Unlock()

	if m.isRecorded(runID) {
		run := &db.Run{ID: runID, Drive: id, Status: db.StatusStarted}
		if err := m.history.Update(run); err != nil {
			slog.Warn("history_record_failed", "run_id", runID, "error", err)
		}
	}
	return recordPath
}

func (m *Machine) respond(runID string, resp *ProvisionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.results[runID]; ok {
		res.Response = *resp
	}
}

// settle records the terminal status of a run. The first status wins.
func (m *Machine) settle(runID, status string, err error) {
	m.mu.Lock()
	res, ok := m.results[runID]
	if !ok {
		res = &Result{RunID: runID}
		m.results[runID] = res
	}
	if res.Status != "" {
		m.mu.Unlock()
		return
	}
	res.Status = status
	res.Err = err
	res.Response.Status = status
	recorded := m.recorded[runID]
	m.mu.Unlock()

	if !recorded {
		return
	}
	msg := ""
	if err != nil && status == StatusFailed {
		msg = err.Error()
	}
	if herr := m.history.UpdateStatus(runID, status, msg); herr != nil {
		slog.Warn("history_record_failed", "run_id", runID, "status", status, "error", herr)
	}
}
