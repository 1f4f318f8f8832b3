package retry

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// instantTimer fires immediately and records every requested wait.
type instantTimer struct {
	c     chan time.Time
	waits []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestRun_SucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= DefaultAttempts; k++ {
		timer := newInstantTimer()
		s := New(DefaultAttempts, DefaultDelay, WithTimer(timer))

		calls := 0
		err := s.Run(context.Background(), "Set USB label", func(ctx context.Context) error {
			calls++
			if calls < k {
				return stderrors.New("volume is locked")
			}
			return nil
		})

		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k, calls)
		assert.Len(t, timer.waits, k-1)
	}
}

func TestRun_Exhausted(t *testing.T) {
	timer := newInstantTimer()
	var progress bytes.Buffer
	s := New(5, 3*time.Second, WithTimer(timer), WithProgress(&progress))

	cause := errors.WithKind(errors.KindExternalTool, stderrors.New("exit code 1"), "")
	calls := 0
	err := s.Run(context.Background(), "Set USB label", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Len(t, timer.waits, 4)
	for _, w := range timer.waits {
		assert.Equal(t, 3*time.Second, w)
	}

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "Set USB label", exhausted.Action)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "Set USB label")
	assert.Equal(t, errors.KindExternalTool, errors.KindOf(err))

	assert.Contains(t, progress.String(), "Set USB label failed (attempt 1/5). Retrying in 3s.")
	assert.Contains(t, progress.String(), "Set USB label failed (attempt 4/5). Retrying in 3s.")
	assert.NotContains(t, progress.String(), "attempt 5/5")
}

func TestRun_NonRetryableKindStopsImmediately(t *testing.T) {
	timer := newInstantTimer()
	s := New(5, time.Second, WithTimer(timer))

	missing := errors.New(errors.KindPackaging, "Missing embedded resource: run_on_insert.ps1")
	calls := 0
	err := s.Run(context.Background(), "Install scheduled task", func(ctx context.Context) error {
		calls++
		return missing
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)
	assert.True(t, errors.Is(err, missing))
	assert.Equal(t, errors.KindPackaging, errors.KindOf(err))

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestRun_PermanentStopsImmediately(t *testing.T) {
	timer := newInstantTimer()
	s := New(5, time.Second, WithTimer(timer))

	cause := stderrors.New("powershell.exe not found")
	calls := 0
	err := s.Run(context.Background(), "Set USB label", func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, cause))
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timer := newInstantTimer()
	s := New(5, time.Second, WithTimer(timer))

	calls := 0
	err := s.Run(ctx, "Set USB label", func(ctx context.Context) error {
		calls++
		cancel()
		return stderrors.New("busy")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNew_NormalizesBudget(t *testing.T) {
	s := New(0, -time.Second)
	assert.Equal(t, 1, s.Attempts())

	calls := 0
	err := s.Run(context.Background(), "noop", func(ctx context.Context) error {
		calls++
		return stderrors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
