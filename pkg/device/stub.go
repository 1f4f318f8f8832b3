//go:build !windows

package device

import (
	"context"
	"fmt"
	"runtime"
)

// StubInspector is used where drive letters do not exist.
type StubInspector struct{}

// NewInspector creates a stub inspector on non-Windows systems.
func NewInspector() (Inspector, error) {
	return &StubInspector{}, nil
}

// Inspect always fails; no volume can be validated on this platform.
func (i *StubInspector) Inspect(ctx context.Context, id string) (*Volume, error) {
	return nil, fmt.Errorf("drive inspection not supported on %s", runtime.GOOS)
}
