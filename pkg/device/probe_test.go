package device

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequence-downloader/setupusb/pkg/runner"
)

type scriptedRunner struct {
	out  *runner.Outcome
	err  error
	args []string
}

func (s *scriptedRunner) Run(ctx context.Context, name string, args ...string) (*runner.Outcome, error) {
	s.args = append([]string{name}, args...)
	return s.out, s.err
}

func TestPowerShellProber(t *testing.T) {
	r := &scriptedRunner{out: &runner.Outcome{Succeeded: true, Stdout: "USB\r\n"}}
	bus, err := NewPowerShellProber(r).BusType(context.Background(), "E")
	require.NoError(t, err)
	assert.Equal(t, "USB", bus)
	assert.Equal(t, "powershell.exe", r.args[0])
	assert.Contains(t, r.args[len(r.args)-1], "Get-Partition -DriveLetter E")

	r = &scriptedRunner{out: &runner.Outcome{ExitCode: 1, Stderr: "No MSFT_Partition objects found"}}
	_, err = NewPowerShellProber(r).BusType(context.Background(), "E")
	require.Error(t, err)
	var exitErr *runner.ExitError
	assert.ErrorAs(t, err, &exitErr)

	r = &scriptedRunner{err: stderrors.New("executable file not found")}
	_, err = NewPowerShellProber(r).BusType(context.Background(), "E")
	assert.Error(t, err)
}
