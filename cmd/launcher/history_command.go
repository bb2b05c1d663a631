package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cmdlauncher/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently executed commands from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			if !cfg.Daemon.JournalEnabled {
				fmt.Fprintln(stdout, "Journal is disabled (daemon.journal_enabled = false)")
				return nil
			}

			store, err := journal.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No commands recorded")
				return nil
			}
			fmt.Fprint(stdout, renderTable(historyColumns, historyRows(entries)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	return cmd
}

func historyRows(entries []journal.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		exit := "-"
		if e.ExitCode != nil {
			exit = strconv.Itoa(*e.ExitCode)
		}
		duration := "-"
		if d := e.Duration(); d > 0 || !e.FinishedAt.IsZero() {
			duration = d.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(e.ClientPID),
			string(e.Status),
			exit,
			duration,
			e.Command,
		})
	}
	return rows
}
