package commands

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// LogLevel is the level of the default logger, adjusted from configuration.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "setupusb",
	Short: "Sequence downloader USB - provision a removable drive",
	Long: `Copies the Sequence downloader onto a removable USB drive, labels the volume
and optionally registers a scheduled task that starts the downloader whenever
the drive is connected.

Run as Administrator. Without --drive the drive the installer runs from is used.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runInstall,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return exitSuccess
	}

	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}

	// Maintenance subcommands report plainly; only the installer leaves records
	if cmd != nil && cmd != rootCmd {
		slog.Error("command_failed", "command", cmd.Name(), "error", err)
		stdConsole().Errorln(err.Error())
		return exitFailure
	}

	// Failures that never reached a command body: bad flags, stray arguments
	if errors.KindOf(err) == errors.KindUnknown {
		err = errors.WithKind(errors.KindUsage, err, "")
	}
	return newTerminal(stdConsole(), nil, "", "").fail(err, "", pauseRequested())
}

func init() {
	LogLevel.Set(slog.LevelWarn)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.WithKind(errors.KindUsage, err, "")
	})

	flags := rootCmd.Flags()
	flags.String("drive", "", "Target drive, e.g. E: (defaults to the drive this installer runs from)")
	flags.String("label", "SEQUSB", "Volume label to apply")
	flags.String("task", "SequenceDownloaderUSB", "Scheduled task name")
	flags.Bool("yes", false, "Skip the confirmation prompt")
	flags.Bool("install-task", false, "Register the scheduled task that starts the downloader on insert")
	flags.Bool("no-pause", false, "Do not wait for Enter before closing")
	flags.Bool("keep-setup", false, "Do not delete this installer after success")

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	viper.BindPFlag("label", flags.Lookup("label"))
	viper.BindPFlag("task", flags.Lookup("task"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// pauseRequested reports whether the closing pause is still enabled. Flags
// are parsed in order, so a --no-pause seen before a parse error counts.
func pauseRequested() bool {
	noPause, err := rootCmd.Flags().GetBool("no-pause")
	return err != nil || !noPause
}

func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		LogLevel.Set(slog.LevelDebug)
	case "info":
		LogLevel.Set(slog.LevelInfo)
	case "error":
		LogLevel.Set(slog.LevelError)
	default:
		LogLevel.Set(slog.LevelWarn)
	}
}
