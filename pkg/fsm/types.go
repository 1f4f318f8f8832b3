package fsm

import (
	stderrors "errors"
)

// ProvisioningRequest is the FSM input. It is built once from flags and
// configuration and never modified by the handlers.
type ProvisioningRequest struct {
	RunID string

	// DriveHint is the --drive value; empty means "the drive the installer runs from".
	DriveHint      string
	ExecutablePath string
	ExecutableDir  string

	Label    string
	TaskName string

	SkipConfirmation      bool
	InstallTrigger        bool
	PauseOnExit           bool
	DeleteSourceOnSuccess bool
}

// ProvisionResponse is the FSM output (accumulated across transitions)
type ProvisionResponse struct {
	// From Validate
	Drive       string
	Root        string
	VolumeLabel string
	Capacity    uint64

	// From Stage
	TargetDir string

	// From Configure
	LabelApplied     bool
	TriggerInstalled bool

	Status string
}

// State names
const (
	StateStart     = "start"
	StateValidate  = "validate"
	StateConfirm   = "confirm"
	StateStage     = "stage"
	StateConfigure = "configure"
	StateCleanup   = "cleanup"
	StateDone      = "done"
	StateFailed    = "failed"
)

// Run outcomes, mirrored in the history table.
const (
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// ErrCanceled ends a run the operator declined at the prompt.
var ErrCanceled = stderrors.New("provisioning canceled")

// Result is the outcome of one run, as seen by the command layer.
type Result struct {
	RunID  string
	Status string
	Drive  string

	// DeviceRecordPath is where the failure record goes on the target drive.
	// It is empty until the drive identifier is resolved.
	DeviceRecordPath string

	Response ProvisionResponse

	// Err is the terminal error of a failed run.
	Err error
}

// Succeeded reports whether the run completed every step.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Canceled reports whether the operator declined.
func (r *Result) Canceled() bool {
	return r.Status == StatusCanceled
}
