// Package retry runs named actions with a bounded number of attempts and a
// constant delay between them.
package retry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// Defaults used by the installer.
const (
	DefaultAttempts = 5
	DefaultDelay    = 3 * time.Second
)

// ExhaustedError is returned once every attempt of an action failed. It
// unwraps to the cause of the last attempt.
type ExhaustedError struct {
	Action   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts", e.Action, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Supervisor retries actions. The zero value is not usable; use New.
type Supervisor struct {
	attempts int
	delay    time.Duration
	out      io.Writer
	timer    backoff.Timer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithProgress sets where progress lines are printed.
func WithProgress(w io.Writer) Option {
	return func(s *Supervisor) { s.out = w }
}

// WithTimer replaces the timer used to wait between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(s *Supervisor) { s.timer = t }
}

// New creates a Supervisor making at most attempts tries with delay between them.
func New(attempts int, delay time.Duration, opts ...Option) *Supervisor {
	if attempts < 1 {
		attempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	s := &Supervisor{attempts: attempts, delay: delay, out: io.Discard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attempts returns the attempt budget of each action.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

// Run executes action until it succeeds, a non-retryable error is returned, ctx
// is done, or the attempt budget is spent.
func (s *Supervisor) Run(ctx context.Context, name string, action func(ctx context.Context) error) error {
	attempt := 0
	permanent := false
	op := func() error {
		attempt++
		err := action(ctx)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
			return err
		}
		if !retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("retry_attempt_failed",
			"action", name,
			"attempt", attempt,
			"max_attempts", s.attempts,
			"delay", wait,
			"error", err)
		fmt.Fprintf(s.out, "%s failed (attempt %d/%d). Retrying in %s.\n", name, attempt, s.attempts, wait)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), uint64(s.attempts-1)),
		ctx,
	)

	err := backoff.RetryNotifyWithTimer(op, policy, notify, s.timer)
	switch {
	case err == nil:
		if attempt > 1 {
			slog.Info("retry_recovered", "action", name, "attempts", attempt)
		}
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return errors.Wrap(err, name+" interrupted")
	case permanent:
		slog.Error("retry_aborted", "action", name, "attempt", attempt, "error", err)
		return errors.Wrap(err, name+" failed")
	default:
		slog.Error("retry_exhausted", "action", name, "attempts", attempt, "error", err)
		return &ExhaustedError{Action: name, Attempts: attempt, Err: err}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch errors.KindOf(err) {
	case errors.KindUnknown, errors.KindExternalTool:
		return true
	default:
		return false
	}
}
