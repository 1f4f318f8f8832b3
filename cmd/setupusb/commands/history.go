package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sequence-downloader/setupusb/internal/config"
	"github.com/sequence-downloader/setupusb/pkg/db"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/host"
)

var (
	historyLimit  int
	historyDelete string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List provisioning runs recorded on this machine",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "Delete the run with this ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, exeDir, _ := host.Executable()
	cfg, err := config.Load(exeDir)
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	applyLogLevel(cfg.LogLevel)

	if err := ensureDirectories(filepath.Dir(cfg.HistoryPath)); err != nil {
		return err
	}
	repo, err := db.NewRepository(cfg.HistoryPath)
	if err != nil {
		return errors.Wrap(err, "history unavailable")
	}
	defer repo.Close()

	if historyDelete != "" {
		if err := repo.Delete(historyDelete); err != nil {
			return errors.Wrap(err, "delete failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", historyDelete)
		return nil
	}

	runs, err := repo.List(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printRuns(w io.Writer, runs []*db.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDRIVE\tLABEL\tSTATUS\tERROR\tID")
	for _, run := range runs {
		drive := "-"
		if run.Drive != "" {
			drive = run.Drive + ":"
		}
		msg := run.ErrorMessage
		if msg == "" {
			msg = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", run.CreatedAt, drive, run.Label, run.Status, msg, run.ID)
	}
	return tw.Flush()
}
