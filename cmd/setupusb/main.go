package main

import (
	"log/slog"
	"os"

	"github.com/sequence-downloader/setupusb/cmd/setupusb/commands"
)

func main() {
	// Logs go to stderr so they never interleave with prompts; the level is
	// raised or lowered once configuration is loaded.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	os.Exit(commands.Execute())
}
