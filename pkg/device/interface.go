package device

import (
	"context"
	"fmt"
)

// MediaClass is the tri-state removability of a volume. Unknown is never
// treated as safe.
type MediaClass int

const (
	Unknown MediaClass = iota
	Removable
	Fixed
)

func (c MediaClass) String() string {
	switch c {
	case Removable:
		return "removable"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Volume is what a fast inspection of a drive reports.
type Volume struct {
	// Root is the filesystem path of the drive root, e.g. `E:\`.
	Root     string
	Media    MediaClass
	Ready    bool
	Capacity uint64
	Label    string
}

// Descriptor is a validated target device.
type Descriptor struct {
	ID       string
	Root     string
	Media    MediaClass
	Ready    bool
	Capacity uint64
	Label    string
}

// Display returns the drive designation as shown to users, e.g. "E:".
func (d *Descriptor) Display() string {
	return fmt.Sprintf("%s:", d.ID)
}

// Inspector queries volume metadata cheaply.
type Inspector interface {
	// Inspect returns ErrNotFound when id does not designate a volume.
	Inspect(ctx context.Context, id string) (*Volume, error)
}

// BusProber reports the bus a volume's disk is attached to, e.g. "USB" or "SATA".
type BusProber interface {
	BusType(ctx context.Context, id string) (string, error)
}
