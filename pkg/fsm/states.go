package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/superfly/fsm"

	"github.com/sequence-downloader/setupusb/pkg/device"
	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// Prompts and messages shown to the operator.
const (
	confirmPrompt   = "Continue and configure this USB? (y/N) "
	canceledMessage = "Canceled."
	completeMessage = "Setup complete."
	pauseMessage    = "Press Enter to close..."
	adminMessage    = "Please run this installer as Administrator."

	interruptedMessage = "Setup interrupted."
)

type provisionRequest = fsm.Request[ProvisioningRequest, ProvisionResponse]
type provisionResponse = fsm.Response[ProvisionResponse]

// fail settles the run as failed and aborts the FSM so the library does not
// retry the transition.
func (m *Machine) fail(req *provisionRequest, state string, err error) (*provisionResponse, error) {
	slog.Error("fsm_state_failed", "run_id", req.Msg.RunID, "state", state,
		"kind", errors.KindOf(err).String(), "error", err)
	m.settle(req.Msg.RunID, StatusFailed, err)
	return nil, fsm.Abort(err)
}

// checkRetries guards against the library re-entering a transition.
func (m *Machine) checkRetries(ctx context.Context, req *provisionRequest, state string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "run_id", req.Msg.RunID, "state", state, "max_retries", m.maxRetries)
		return fmt.Errorf("max retries (%d) exceeded in %s", m.maxRetries, state)
	}
	return nil
}

func responseOf(req *provisionRequest) *ProvisionResponse {
	if req.W.Msg != nil {
		return req.W.Msg
	}
	return &ProvisionResponse{}
}

// handleStart checks the process may modify devices at all.
func (m *Machine) handleStart(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_start", "run_id", req.Msg.RunID, "drive_hint", req.Msg.DriveHint)

	if err := m.checkRetries(ctx, req, StateStart); err != nil {
		return m.fail(req, StateStart, err)
	}

	elevated, err := m.elevated()
	if err != nil {
		return m.fail(req, StateStart, errors.WithKind(errors.KindPrivilege, err, adminMessage))
	}
	if !elevated {
		return m.fail(req, StateStart, errors.New(errors.KindPrivilege, adminMessage))
	}
	m.record(req.Msg)

	resp := responseOf(req)
	m.respond(req.Msg.RunID, resp)
	return fsm.NewResponse(resp), nil
}

// handleValidate resolves the target drive and refuses anything that is not a
// ready, removable volume.
func (m *Machine) handleValidate(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_validate", "run_id", req.Msg.RunID)

	if err := m.checkRetries(ctx, req, StateValidate); err != nil {
		return m.fail(req, StateValidate, err)
	}

	id, err := device.ResolveID(req.Msg.DriveHint, req.Msg.ExecutableDir)
	if err != nil {
		return m.fail(req, StateValidate, err)
	}
	recordPath := m.resolved(req.Msg.RunID, id)
	slog.Info("device_resolved", "run_id", req.Msg.RunID, "device", id, "failure_record", recordPath)

	desc, err := m.validator.Validate(ctx, id)
	if err != nil {
		return m.fail(req, StateValidate, err)
	}

	resp := responseOf(req)
	resp.Drive = desc.ID
	resp.Root = desc.Root
	if resp.Root == "" {
		resp.Root = m.rootOf(desc.ID)
	}
	resp.VolumeLabel = desc.Label
	resp.Capacity = desc.Capacity

	m.console.Printf("Target USB: %s label='%s' size=%s\n", desc.Display(), desc.Label, humanize.IBytes(desc.Capacity))

	m.respond(req.Msg.RunID, resp)
	return fsm.NewResponse(resp), nil
}

// handleConfirm asks the operator before anything is written.
func (m *Machine) handleConfirm(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_confirm", "run_id", req.Msg.RunID, "skip", req.Msg.SkipConfirmation)

	resp := responseOf(req)
	if req.Msg.SkipConfirmation {
		return fsm.NewResponse(resp), nil
	}

	promptCtx, cancel := m.interruptible(ctx, req.Msg.RunID)
	defer cancel()

	if !m.console.Confirm(promptCtx, confirmPrompt) {
		if err := promptCtx.Err(); err != nil {
			return m.fail(req, StateConfirm, errors.WithKind(errors.KindUnknown, err, interruptedMessage))
		}
		m.console.Println(canceledMessage)
		slog.Info("provision_canceled", "run_id", req.Msg.RunID, "device", resp.Drive)
		m.settle(req.Msg.RunID, StatusCanceled, ErrCanceled)
		return nil, fsm.Abort(ErrCanceled)
	}

	return fsm.NewResponse(resp), nil
}

// handleStage copies the payload onto the drive.
func (m *Machine) handleStage(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_stage", "run_id", req.Msg.RunID)

	if err := m.checkRetries(ctx, req, StateStage); err != nil {
		return m.fail(req, StateStage, err)
	}

	resp := responseOf(req)
	if resp.Root == "" {
		return m.fail(req, StateStage, fmt.Errorf("response not initialized"))
	}

	targetDir := filepath.Join(resp.Root, m.payloadFolder)
	if err := m.stager.Stage(ctx, m.manifest, targetDir); err != nil {
		return m.fail(req, StateStage, err)
	}
	resp.TargetDir = targetDir

	m.respond(req.Msg.RunID, resp)
	return fsm.NewResponse(resp), nil
}

// handleConfigure labels the volume and, when asked, installs the insert trigger.
func (m *Machine) handleConfigure(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_configure", "run_id", req.Msg.RunID, "install_trigger", req.Msg.InstallTrigger)

	if err := m.checkRetries(ctx, req, StateConfigure); err != nil {
		return m.fail(req, StateConfigure, err)
	}

	resp := responseOf(req)

	if err := m.configurator.SetLabel(ctx, resp.Drive, req.Msg.Label); err != nil {
		return m.fail(req, StateConfigure, err)
	}
	resp.LabelApplied = true

	if req.Msg.InstallTrigger {
		if err := m.configurator.InstallTrigger(ctx, req.Msg.TaskName, req.Msg.Label); err != nil {
			return m.fail(req, StateConfigure, err)
		}
		resp.TriggerInstalled = true
	}

	m.respond(req.Msg.RunID, resp)
	return fsm.NewResponse(resp), nil
}

// handleCleanup reports success. Nothing here can fail the run.
func (m *Machine) handleCleanup(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	slog.Info("fsm_state_cleanup", "run_id", req.Msg.RunID)

	resp := responseOf(req)
	m.console.Println(completeMessage)

	if req.Msg.PauseOnExit {
		m.console.Pause(ctx, pauseMessage)
	}

	if req.Msg.DeleteSourceOnSuccess && m.removeSelf != nil && req.Msg.ExecutablePath != "" {
		if err := m.removeSelf(req.Msg.ExecutablePath); err != nil {
			slog.Warn("self_remove_failed", "run_id", req.Msg.RunID, "path", req.Msg.ExecutablePath, "error", err)
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleDone marks the run as succeeded
func (m *Machine) handleDone(ctx context.Context, req *provisionRequest) (*provisionResponse, error) {
	resp := responseOf(req)
	resp.Status = StatusSucceeded
	m.respond(req.Msg.RunID, resp)
	m.settle(req.Msg.RunID, StatusSucceeded, nil)

	slog.Info("fsm_complete", "run_id", req.Msg.RunID, "device", resp.Drive, "target", resp.TargetDir)
	return fsm.NewResponse(resp), nil
}
