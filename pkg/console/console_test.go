package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"y\r\n", true},
		{" y \n", true},
		{"y", true},
		{"yes\n", false},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		c := New(strings.NewReader(tt.input), &out, &bytes.Buffer{})
		assert.Equal(t, tt.want, c.Confirm(context.Background(), "Continue and configure this USB? (y/N) "), "input %q", tt.input)
		assert.Equal(t, "Continue and configure this USB? (y/N) ", out.String())
	}
}

func TestPause(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("\nleftover\n"), &out, &bytes.Buffer{})

	c.Pause(context.Background(), "Press Enter to close...")
	assert.Equal(t, "Press Enter to close...\n", out.String())

	// Pause consumed exactly one line, so the next answer is "leftover"
	assert.False(t, c.Confirm(context.Background(), ""))
}

func TestPause_EOF(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out, &bytes.Buffer{})
	c.Pause(context.Background(), "Press Enter to close...")
	assert.Equal(t, "Press Enter to close...\n", out.String())
}

func TestErrorln(t *testing.T) {
	var out, errOut bytes.Buffer
	c := New(strings.NewReader(""), &out, &errOut)
	c.Errorln("Drive 'E:' not found.")
	assert.Empty(t, out.String())
	assert.Equal(t, "Drive 'E:' not found.\n", errOut.String())
}

func TestConfirm_CanceledWhileWaiting(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out, errOut bytes.Buffer
	c := New(pr, &out, &errOut)

	ctx, cancel := context.WithCancel(context.Background())
	answered := make(chan bool, 1)
	go func() { answered <- c.Confirm(ctx, "Continue and configure this USB? (y/N) ") }()

	cancel()
	select {
	case got := <-answered:
		assert.False(t, got)
	case <-time.After(5 * time.Second):
		t.Fatal("Confirm kept waiting for input after cancellation")
	}

	// output is not held up by the read still pending on the pipe
	c.Errorln("Setup interrupted.")
	assert.Equal(t, "Setup interrupted.\n", errOut.String())

	// the line being read when the prompt gave up goes to the next reader
	go func() { _, _ = pw.Write([]byte("y\n")) }()
	assert.True(t, c.Confirm(context.Background(), ""))
}

func TestPause_Canceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	c := New(pr, &out, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Pause(ctx, "Press Enter to close...")
	assert.Equal(t, "Press Enter to close...\n", out.String())
}
