package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequence-downloader/setupusb/internal/config"
	"github.com/sequence-downloader/setupusb/pkg/console"
	"github.com/sequence-downloader/setupusb/pkg/db"
	"github.com/sequence-downloader/setupusb/pkg/device"
	"github.com/sequence-downloader/setupusb/pkg/failure"
	"github.com/sequence-downloader/setupusb/pkg/host"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/runner/runnertest"
)

type fakeInspector struct{}

func (fakeInspector) Inspect(ctx context.Context, id string) (*device.Volume, error) {
	if id != "E" {
		return nil, device.ErrNotFound
	}
	return &device.Volume{Root: "/drives/E", Media: device.Removable, Ready: true, Capacity: 16_000_000_000, Label: "NO NAME"}, nil
}

type instantTimer struct {
	c     chan time.Time
	waits []time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type testEnv struct {
	*environment
	fake   *runnertest.Fake
	out    *bytes.Buffer
	errOut *bytes.Buffer
	clock  *instantTimer
}

func newTestEnv(t *testing.T, input string) *testEnv {
	t.Helper()

	te := &testEnv{
		fake:   runnertest.New(),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
		clock:  &instantTimer{c: make(chan time.Time, 1)},
	}
	memfs := afero.NewMemMapFs()
	require.NoError(t, memfs.MkdirAll("/drives/E", 0755))
	require.NoError(t, memfs.MkdirAll("/tools", 0755))

	te.environment = &environment{
		console:   console.New(strings.NewReader(input), te.out, te.errOut),
		runner:    te.fake,
		inspector: fakeInspector{},
		fs:        memfs,
		payload: fstest.MapFS{
			payload.ExecutableName: {Data: []byte("MZ")},
			payload.TriggerScript:  {Data: []byte("param($UsbLabel)")},
			payload.InstallScript:  {Data: []byte("schtasks")},
			payload.SettingsName:   {Data: []byte("{}")},
			payload.ReadmeName:     {Data: []byte("readme")},
		},
		elevated:   func() (bool, error) { return true, nil },
		removeSelf: func(string) error { return nil },
		rootOf:     func(id string) string { return "/drives/" + id },
		timer:      te.clock,
		exePath:    "/tools/setupusb.exe",
		exeDir:     "/tools",
	}
	return te
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(viper.New(), t.TempDir())
	require.NoError(t, err)
	cfg.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	cfg.HelperDir = "/ProgramData/SequenceDownloaderUSB"
	require.NoError(t, cfg.Validate())
	return cfg
}

const (
	deviceRecord   = "/drives/E/Sequence downloader USB/SETUP_ERROR.txt"
	fallbackRecord = "/tools/SETUP_ERROR.txt"
)

func TestProvision_Success(t *testing.T) {
	te := newTestEnv(t, "")
	cfg := testConfig(t)

	code := provision(context.Background(), cfg, installOptions{Drive: "E", Yes: true, NoPause: true, KeepSetup: true}, te.environment)

	assert.Equal(t, exitSuccess, code, "stderr: %s", te.errOut.String())
	for _, e := range payload.DefaultManifest() {
		exists, _ := afero.Exists(te.fs, filepath.Join("/drives/E/Sequence downloader USB", e.Destination))
		assert.True(t, exists, e.Destination)
	}
	for _, p := range []string{deviceRecord, fallbackRecord} {
		exists, _ := afero.Exists(te.fs, p)
		assert.False(t, exists, p)
	}

	calls := te.fake.CallsTo("powershell.exe")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Line(), "-NewFileSystemLabel 'SEQUSB'")
	assert.Contains(t, te.out.String(), "Setup complete.")
	assert.Empty(t, te.errOut.String())

	repo, err := db.NewRepository(cfg.HistoryPath)
	require.NoError(t, err)
	defer repo.Close()
	runs, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.StatusSucceeded, runs[0].Status)
}

func TestProvision_LabelFailureWritesBothRecords(t *testing.T) {
	te := newTestEnv(t, "")
	te.fake.Exit("powershell.exe", 1)
	cfg := testConfig(t)

	code := provision(context.Background(), cfg, installOptions{Drive: "E", Yes: true, NoPause: true}, te.environment)

	assert.Equal(t, exitFailure, code)
	assert.Len(t, te.fake.CallsTo("powershell.exe"), 5)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, te.clock.waits)
	assert.Contains(t, te.out.String(), "Set USB label failed (attempt 1/5). Retrying in 3s.\n")
	assert.Contains(t, te.errOut.String(), "Set USB label failed after 5 attempts")

	for _, p := range []string{deviceRecord, fallbackRecord} {
		data, err := afero.ReadFile(te.fs, p)
		require.NoError(t, err, p)
		assert.Contains(t, string(data), "Set USB label")
		assert.Contains(t, string(data), " ERROR\n")
	}

	// Staging completed before the label step
	for _, e := range payload.DefaultManifest() {
		exists, _ := afero.Exists(te.fs, filepath.Join("/drives/E/Sequence downloader USB", e.Destination))
		assert.True(t, exists, e.Destination)
	}
}

func TestProvision_DeclinedExitsZero(t *testing.T) {
	te := newTestEnv(t, "n\n")
	cfg := testConfig(t)

	code := provision(context.Background(), cfg, installOptions{Drive: "E", NoPause: true}, te.environment)

	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, te.out.String(), "Canceled.\n")

	entries, err := afero.ReadDir(te.fs, "/drives/E")
	require.NoError(t, err)
	assert.Empty(t, entries)
	exists, _ := afero.Exists(te.fs, fallbackRecord)
	assert.False(t, exists)
}

func TestProvision_NotElevated(t *testing.T) {
	te := newTestEnv(t, "\n")
	te.elevated = func() (bool, error) { return false, nil }
	cfg := testConfig(t)

	code := provision(context.Background(), cfg, installOptions{Drive: "E", Yes: true}, te.environment)

	assert.Equal(t, exitFailure, code)
	assert.Equal(t, "Please run this installer as Administrator.\n", te.errOut.String())
	assert.True(t, strings.HasSuffix(te.out.String(), "Press Enter to close...\n"))

	data, err := afero.ReadFile(te.fs, fallbackRecord)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Please run this installer as Administrator.")

	exists, _ := afero.Exists(te.fs, deviceRecord)
	assert.False(t, exists)

	_, err = os.Stat(cfg.HistoryPath)
	assert.True(t, os.IsNotExist(err), "history created before the privilege check")
}

// syncBuffer is a bytes.Buffer safe to poll while the state machine writes.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestProvision_InterruptAtPrompt(t *testing.T) {
	te := newTestEnv(t, "")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	out, errOut := &syncBuffer{}, &syncBuffer{}
	te.console = console.New(pr, out, errOut)
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() { done <- provision(ctx, cfg, installOptions{Drive: "E"}, te.environment) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Continue and configure this USB? (y/N) ")
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitFailure, code)
	case <-time.After(10 * time.Second):
		t.Fatal("provision still waiting at the prompt after interrupt")
	}

	assert.Equal(t, "Setup interrupted.\n", errOut.String())
	assert.NotContains(t, out.String(), "Canceled.")
	assert.NotContains(t, out.String(), pauseMessage)

	for _, record := range []string{deviceRecord, fallbackRecord} {
		data, err := afero.ReadFile(te.fs, record)
		require.NoError(t, err, record)
		assert.Contains(t, string(data), "Setup interrupted.")
	}

	staged, _ := afero.Exists(te.fs, "/drives/E/Sequence downloader USB/"+payload.ExecutableName)
	assert.False(t, staged)
	assert.Empty(t, te.fake.Calls())
}

func TestExecute_UsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	records := afero.NewMemMapFs()
	savedConsole, savedRecorder := stdConsole, newRecorder
	stdConsole = func() *console.Console { return console.New(strings.NewReader(""), &out, &errOut) }
	newRecorder = func() *failure.Recorder { return &failure.Recorder{Fs: records, Now: time.Now} }
	t.Cleanup(func() {
		stdConsole, newRecorder = savedConsole, savedRecorder
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"--no-pause", "--bogus"})
	assert.Equal(t, exitFailure, Execute())
	assert.Contains(t, errOut.String(), "unknown flag: --bogus")

	errOut.Reset()
	rootCmd.SetArgs([]string{"--no-pause", "stray"})
	assert.Equal(t, exitFailure, Execute())
	assert.Contains(t, errOut.String(), `unknown command "stray"`)
	assert.NotContains(t, out.String(), pauseMessage)

	// the record lands next to the binary, in the injected filesystem only
	_, exeDir, err := host.Executable()
	require.NoError(t, err)
	data, err := afero.ReadFile(records, filepath.Join(exeDir, failure.DefaultFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `unknown command "stray"`)

	_, err = os.Stat(filepath.Join(exeDir, failure.DefaultFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, nil))
	assert.Equal(t, "No runs recorded\n", buf.String())

	buf.Reset()
	require.NoError(t, printRuns(&buf, []*db.Run{
		{ID: "run-1", Drive: "E", Label: "SEQUSB", Status: db.StatusFailed, ErrorMessage: "Drive 'E:' is not ready.", CreatedAt: "2026-03-14T09:26:53Z"},
		{ID: "run-2", Label: "SEQUSB", Status: db.StatusCanceled, CreatedAt: "2026-03-14T09:20:00Z"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "STARTED"))
	assert.Contains(t, lines[1], "E:")
	assert.Contains(t, lines[1], "Drive 'E:' is not ready.")
	assert.Contains(t, lines[2], "canceled")
}
