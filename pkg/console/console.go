// Package console is the interactive surface of the installer: progress lines,
// the confirmation prompt and the closing pause.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// Console reads answers from in and prints to out and errOut.
//
// Reads happen on a background goroutine, one line at a time. A caller whose
// context ends stops waiting, and the line still being read is handed to the
// next caller. Output never waits for input.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	in      *bufio.Reader
	readMu  sync.Mutex
	reading bool
	lines   chan lineResult
}

// New creates a console on the given streams.
func New(in io.Reader, out, errOut io.Writer) *Console {
	return &Console{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		lines:  make(chan lineResult, 1),
	}
}

// Std creates a console on the process streams.
func Std() *Console {
	return New(os.Stdin, os.Stdout, os.Stderr)
}

// Out is the writer for progress output.
func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Println(msg string) {
	c.Printf("%s\n", msg)
}

// Errorln prints msg on the error stream.
func (c *Console) Errorln(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.errOut, msg)
}

// Confirm prints prompt and reports whether the answer was y or Y. End of input
// and a done ctx count as no.
func (c *Console) Confirm(ctx context.Context, prompt string) bool {
	c.Printf("%s", prompt)
	line, err := c.readLine(ctx)
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

// Pause prints msg and waits for Enter, end of input or ctx.
func (c *Console) Pause(ctx context.Context, msg string) {
	c.Println(msg)
	_, _ = c.readLine(ctx)
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	c.readMu.Lock()
	if !c.reading {
		c.reading = true
		go c.pump()
	}
	c.readMu.Unlock()

	select {
	case r := <-c.lines:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) pump() {
	line, err := c.in.ReadString('\n')

	c.readMu.Lock()
	c.reading = false
	c.readMu.Unlock()

	c.lines <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
}
