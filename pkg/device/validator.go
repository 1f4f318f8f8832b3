// Package device decides whether a drive is safe to provision.
//
// A volume is accepted only when it is classified as removable, either directly
// or because its disk sits on a USB bus. When the bus probe fails the volume
// stays Unknown and is refused.
package device

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// Validation failures. Errors returned by Validator wrap one of these.
var (
	ErrNotFound     = stderrors.New("device not found")
	ErrNotReady     = stderrors.New("device not ready")
	ErrNotRemovable = stderrors.New("device not removable")
)

// Validator accepts or refuses target devices.
type Validator struct {
	inspector Inspector
	prober    BusProber
}

// NewValidator creates a validator from a fast inspector and a slow bus prober.
func NewValidator(inspector Inspector, prober BusProber) *Validator {
	return &Validator{inspector: inspector, prober: prober}
}

// Validate inspects id and returns its descriptor if it is a ready, removable
// volume.
func (v *Validator) Validate(ctx context.Context, id string) (*Descriptor, error) {
	slog.Info("device_validate_start", "device", id)

	vol, err := v.inspector.Inspect(ctx, id)
	if err != nil || vol == nil {
		slog.Error("device_not_found", "device", id, "error", err)
		cause := ErrNotFound
		if err != nil && !errors.Is(err, ErrNotFound) {
			cause = errors.Wrap(err, ErrNotFound.Error())
		}
		return nil, &errors.Error{Kind: errors.KindDevice, Msg: "Drive '" + id + ":' not found.", Err: cause}
	}

	media := v.classify(ctx, id, vol.Media)
	if media != Removable {
		slog.Error("device_refused", "device", id, "media", media)
		return nil, &errors.Error{
			Kind: errors.KindDevice,
			Msg:  "Refusing to run on non-removable, non-USB drive '" + id + ":'.",
			Err:  ErrNotRemovable,
		}
	}

	if !vol.Ready {
		slog.Error("device_not_ready", "device", id)
		return nil, &errors.Error{Kind: errors.KindDevice, Msg: "Drive '" + id + ":' is not ready.", Err: ErrNotReady}
	}

	desc := &Descriptor{
		ID:       id,
		Root:     vol.Root,
		Media:    media,
		Ready:    vol.Ready,
		Capacity: vol.Capacity,
		Label:    vol.Label,
	}
	slog.Info("device_validated", "device", id, "root", desc.Root, "label", desc.Label, "capacity", desc.Capacity)
	return desc, nil
}

// Classify returns the removability of id, consulting the bus prober only when
// the fast classification is not Removable.
func (v *Validator) Classify(ctx context.Context, id string) (MediaClass, error) {
	vol, err := v.inspector.Inspect(ctx, id)
	if err != nil {
		return Unknown, err
	}
	return v.classify(ctx, id, vol.Media), nil
}

func (v *Validator) classify(ctx context.Context, id string, fast MediaClass) MediaClass {
	if fast == Removable {
		return Removable
	}
	if v.prober == nil {
		return Unknown
	}

	bus, err := v.prober.BusType(ctx, id)
	if err != nil {
		slog.Warn("device_bus_probe_failed", "device", id, "fast_class", fast, "error", err)
		return Unknown
	}
	bus = strings.TrimSpace(bus)
	slog.Info("device_bus_probed", "device", id, "fast_class", fast, "bus", bus)

	switch {
	case strings.EqualFold(bus, BusUSB):
		return Removable
	case bus == "":
		return Unknown
	default:
		return Fixed
	}
}
