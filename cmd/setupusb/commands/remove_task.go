package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sequence-downloader/setupusb/internal/config"
	"github.com/sequence-downloader/setupusb/pkg/configure"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/host"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/retry"
	"github.com/sequence-downloader/setupusb/pkg/runner"
)

var removeTaskCmd = &cobra.Command{
	Use:   "remove-task",
	Short: "Remove the scheduled task and its helper script from this machine",
	Args:  cobra.NoArgs,
	RunE:  runRemoveTask,
}

func init() {
	rootCmd.AddCommand(removeTaskCmd)
	removeTaskCmd.Flags().String("task", "", "Scheduled task name (defaults to the configured task)")
}

func runRemoveTask(cmd *cobra.Command, args []string) error {
	_, exeDir, _ := host.Executable()
	cfg, err := config.Load(exeDir)
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	applyLogLevel(cfg.LogLevel)

	task := cfg.Task
	if v, _ := cmd.Flags().GetString("task"); v != "" {
		task = v
	}

	elevated, err := host.IsElevated()
	if err != nil {
		return errors.WithKind(errors.KindPrivilege, err, adminMessage)
	}
	if !elevated {
		return errors.New(errors.KindPrivilege, adminMessage)
	}

	out := cmd.OutOrStdout()
	supervisor := retry.New(cfg.RetryAttempts, cfg.RetryDelay, retry.WithProgress(out))
	stager := &payload.Stager{Source: payload.Embedded(), Dest: afero.NewOsFs()}
	configurator := configure.New(runner.NewExecRunner(), supervisor, stager, cfg.HelperDir)

	if err := configurator.RemoveTrigger(cmd.Context(), task); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed scheduled task %s.\n", task)
	return nil
}
