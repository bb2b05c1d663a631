package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cmdlauncher/internal/daemonctl"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove FIFOs and shared memory left behind by dead processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			report, err := daemonctl.Cleanup(cfg)
			stdout := cmd.OutOrStdout()

			for _, path := range report.ResultFIFOs {
				fmt.Fprintf(stdout, "Removed result FIFO %s\n", path)
			}
			if report.SkippedInUse > 0 {
				fmt.Fprintf(stdout, "Kept %d result FIFO(s) owned by live clients\n", report.SkippedInUse)
			}
			if report.DaemonRunning {
				fmt.Fprintln(stdout, "Daemon is running; control FIFO and segment kept")
			}
			if report.ControlFIFO {
				fmt.Fprintf(stdout, "Removed control FIFO %s\n", cfg.IPC.RequestPipe)
			}
			if report.Segment {
				fmt.Fprintf(stdout, "Removed shared segment %s\n", cfg.SegmentPath())
			}
			if report.PIDFile {
				fmt.Fprintf(stdout, "Removed pid file %s\n", cfg.PIDPath())
			}
			if err != nil {
				return err
			}
			if len(report.ResultFIFOs) == 0 && !report.ControlFIFO && !report.Segment && !report.PIDFile {
				fmt.Fprintln(stdout, "Nothing to clean up")
			}
			return nil
		},
	}
}
