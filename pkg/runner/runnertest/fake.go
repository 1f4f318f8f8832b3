// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/sequence-downloader/setupusb/pkg/runner"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

// Line joins the call back into a single command line.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

type reply struct {
	out *runner.Outcome
	err error
}

// Fake answers invocations from per-executable queues. When a queue holds one
// reply it is repeated; an executable with no queue succeeds with empty output.
type Fake struct {
	mu     sync.Mutex
	queues map[string][]reply
	calls  []Call
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{queues: make(map[string][]reply)}
}

// Exit queues outcomes with the given exit codes for name.
func (f *Fake) Exit(name string, codes ...int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		out := &runner.Outcome{Succeeded: code == 0, ExitCode: code}
		if code != 0 {
			out.Stderr = "simulated failure"
		}
		f.queues[name] = append(f.queues[name], reply{out: out})
	}
	return f
}

// Output queues a successful outcome with stdout for name.
func (f *Fake) Output(name, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = append(f.queues[name], reply{out: &runner.Outcome{Succeeded: true, Stdout: stdout}})
	return f
}

// StartError queues a start failure for name.
func (f *Fake) StartError(name string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = append(f.queues[name], reply{err: err})
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) (*runner.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})

	q := f.queues[name]
	switch len(q) {
	case 0:
		return &runner.Outcome{Succeeded: true}, nil
	case 1:
		return q[0].out, q[0].err
	default:
		f.queues[name] = q[1:]
		return q[0].out, q[0].err
	}
}

// Calls returns every invocation so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the invocations of name.
func (f *Fake) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
