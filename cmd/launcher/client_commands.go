package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cmdlauncher/internal/client"
	"cmdlauncher/internal/collector"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/daemonctl"
)

func newClientCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Read commands from stdin and submit them to the daemon",
		Long: "Read commands line by line from stdin and submit each one to the daemon.\n" +
			"Results are appended to the configured output and error logs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sess, err := client.Open(runCtx, cfg, logger, client.Options{})
			if err != nil {
				return daemonHint(err)
			}
			runErr := sess.Run(runCtx, lineSource(cmd))
			if runErr == nil && runCtx.Err() == nil {
				// Input is exhausted; collect what the queued commands still print.
				if err := sess.Wait(runCtx, cfg.Settle()); err != nil && !errors.Is(err, context.Canceled) {
					runErr = err
				}
			}
			return errors.Join(runErr, sess.Close())
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var settle time.Duration
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <command>...",
		Short: "Submit one command and print its output",
		Long: "Submit one command to the daemon and wait for it to finish, then keep\n" +
			"collecting for the settle period. Output is echoed to this terminal and\n" +
			"appended to the configured result logs.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			command := strings.Join(args, " ")
			if settle <= 0 {
				settle = cfg.Settle()
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			outSink, errSink, closeSinks, err := runSinks(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), quiet)
			if err != nil {
				return err
			}
			defer closeSinks()

			sess, err := client.Open(runCtx, cfg, logger, client.Options{OutputSink: outSink, ErrorSink: errSink})
			if err != nil {
				return daemonHint(err)
			}
			runErr := sess.SubmitAndWait(runCtx, command, settle)
			if errors.Is(runErr, context.Canceled) {
				runErr = nil
			}
			return errors.Join(runErr, sess.Close())
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 0, "How long to keep collecting after the command finishes (default client.settle_millis)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only append results to the log files")
	return cmd
}

// runSinks tees the configured log files with the terminal.
func runSinks(cfg *config.Config, stdout, stderr io.Writer, quiet bool) (collector.Sink, collector.Sink, func(), error) {
	outFile, err := collector.OpenFileSink(cfg.Client.OutputLog, cfg.Client.SyncSink)
	if err != nil {
		return nil, nil, nil, err
	}
	errFile, err := collector.OpenFileSink(cfg.Client.ErrorLog, cfg.Client.SyncSink)
	if err != nil {
		_ = outFile.Close()
		return nil, nil, nil, err
	}
	closeSinks := func() {
		_ = outFile.Close()
		_ = errFile.Close()
	}
	if quiet {
		return outFile, errFile, closeSinks, nil
	}
	return collector.Tee(outFile, collector.NewWriterSink(stdout)),
		collector.Tee(errFile, collector.NewWriterSink(stderr)),
		closeSinks, nil
}

func lineSource(cmd *cobra.Command) client.LineSource {
	in := cmd.InOrStdin()
	if in == os.Stdin {
		return client.NewConsoleSource()
	}
	return client.NewReaderSource(in, nil)
}

func daemonHint(err error) error {
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		return fmt.Errorf("%w; start it with 'launcher start' or 'launcher daemon'", err)
	}
	return err
}
