package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cmdlauncher/internal/daemonctl"
	"cmdlauncher/internal/journal"
)

const (
	startTimeout = 10 * time.Second
	stopGrace    = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the launcher daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg := ctx.configValue()
			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			if running {
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", pid)
				return nil
			}

			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := daemonctl.Launch(exe, ctx.configPath()); err != nil {
				return err
			}
			if err := daemonctl.WaitForReady(cfg, startTimeout); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the launcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(ctx.configValue(), stopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon (pid %d) ignored SIGTERM and was killed\n", result.PID)
				fmt.Fprintln(stdout, "Run 'launcher cleanup' to remove the resources it left behind")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and journal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil && snap == nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			writeSectionHeader(stdout, "Daemon", colorize)
			for _, line := range daemonStatusLines(snap, cfg.IPC.RequestPipe, cfg.SegmentPath()) {
				fmt.Fprintln(stdout, line.render(colorize))
			}
			fmt.Fprintln(stdout)

			if snap.Queue != nil {
				writeSectionHeader(stdout, "Queue", colorize)
				q := snap.Queue
				rows := [][]string{
					{"Pending", strconv.Itoa(q.Full)},
					{"Free slots", strconv.Itoa(q.Empty)},
					{"Capacity", strconv.Itoa(q.Capacity)},
					{"Front", strconv.Itoa(q.Front)},
					{"Rear", strconv.Itoa(q.Rear)},
					{"Submitted", strconv.FormatUint(q.Enqueued, 10)},
					{"Finished", strconv.FormatUint(q.Finished, 10)},
				}
				fmt.Fprint(stdout, renderTable(queueColumns, rows))
				fmt.Fprintln(stdout)
			}

			if len(snap.Journal) > 0 {
				writeSectionHeader(stdout, "Journal", colorize)
				fmt.Fprint(stdout, renderTable(journalColumns, journalStatusRows(snap.Journal)))
				fmt.Fprintln(stdout)
			}

			writeSectionHeader(stdout, "Clients", colorize)
			if len(snap.ResultFIFOs) == 0 {
				fmt.Fprintln(stdout, "No result FIFOs")
			} else {
				rows := make([][]string, 0, len(snap.ResultFIFOs))
				for _, f := range snap.ResultFIFOs {
					rows = append(rows, []string{f.Path, strconv.Itoa(f.PID), yesNo(f.Alive)})
				}
				fmt.Fprint(stdout, renderTable(clientColumns, rows))
			}
			return err
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func journalStatusRows(stats map[journal.Status]int) [][]string {
	statuses := make([]string, 0, len(stats))
	for status := range stats {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{status, strconv.Itoa(stats[journal.Status(status)])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
