package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/runner"
)

// PowerShellProber asks the storage cmdlets which bus a drive's disk uses.
type PowerShellProber struct {
	runner runner.Runner
}

// NewPowerShellProber creates a bus prober that shells out through r.
func NewPowerShellProber(r runner.Runner) *PowerShellProber {
	return &PowerShellProber{runner: r}
}

// BusType implements BusProber.
func (p *PowerShellProber) BusType(ctx context.Context, id string) (string, error) {
	command := fmt.Sprintf("Get-Partition -DriveLetter %s | Get-Disk | Select-Object -ExpandProperty BusType", id)
	out, err := p.runner.Run(ctx, "powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", command)
	if err != nil {
		return "", errors.Wrap(err, "bus probe failed")
	}
	if err := out.Err("powershell.exe"); err != nil {
		return "", errors.Wrap(err, "bus probe failed")
	}
	return strings.TrimSpace(out.Stdout), nil
}
