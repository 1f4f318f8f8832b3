//go:build windows

package device

import (
	"context"
	"log/slog"

	"golang.org/x/sys/windows"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// WindowsInspector queries drives through the Win32 volume APIs.
type WindowsInspector struct{}

// NewInspector creates the platform inspector.
func NewInspector() (Inspector, error) {
	slog.Info("device_inspector_init", "platform", "windows")
	return &WindowsInspector{}, nil
}

// Inspect implements Inspector.
func (i *WindowsInspector) Inspect(ctx context.Context, id string) (*Volume, error) {
	root := RootOf(id)
	rootPtr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return nil, errors.Wrap(err, "invalid drive root")
	}

	vol := &Volume{Root: root}
	switch windows.GetDriveType(rootPtr) {
	case windows.DRIVE_NO_ROOT_DIR:
		return nil, ErrNotFound
	case windows.DRIVE_REMOVABLE:
		vol.Media = Removable
	case windows.DRIVE_FIXED:
		vol.Media = Fixed
	default:
		vol.Media = Unknown
	}

	label := make([]uint16, windows.MAX_PATH+1)
	fsName := make([]uint16, windows.MAX_PATH+1)
	var serial, maxComponent, flags uint32
	err = windows.GetVolumeInformation(rootPtr, &label[0], uint32(len(label)),
		&serial, &maxComponent, &flags, &fsName[0], uint32(len(fsName)))
	if err != nil {
		// no media inserted, locked, or unformatted
		slog.Warn("device_volume_info_failed", "device", id, "error", err)
		return vol, nil
	}
	vol.Label = windows.UTF16ToString(label)

	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(rootPtr, &free, &total, &totalFree); err != nil {
		slog.Warn("device_capacity_query_failed", "device", id, "error", err)
		return vol, nil
	}
	vol.Capacity = total
	vol.Ready = true

	return vol, nil
}
