package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cmdlauncher/internal/config"
	"cmdlauncher/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var source string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon run log or the client result logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			path, err := logPathFor(cfg, source)
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			stdout := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			for {
				result, err := logs.Tail(runCtx, path, opts)
				for _, line := range result.Lines {
					fmt.Fprintln(stdout, line)
				}
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				if !follow {
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: followWait}
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are appended")
	cmd.Flags().StringVar(&source, "source", "daemon", "Log to show: daemon, output or error")
	return cmd
}

func logPathFor(cfg *config.Config, source string) (string, error) {
	switch source {
	case "daemon":
		return logs.LatestRunLog(cfg.Logging.Dir)
	case "output":
		return cfg.Client.OutputLog, nil
	case "error":
		return cfg.Client.ErrorLog, nil
	default:
		return "", fmt.Errorf("unknown log source %q (want daemon, output or error)", source)
	}
}
