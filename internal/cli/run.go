package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runtime worker",
		Long: `Start the runtime: create the schema if needed, recover queued and
delayed signals from the database, and keep the single worker applying
signals until interrupted.

Example:
  statemill run --db ./shop.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(rootOpts, cmd)
		},
	}
	return cmd
}

func runWorker(opts *RootOptions, cmd *cobra.Command) error {
	p, db, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer db.Close()
	defer p.Close()

	if err := p.Create(); err != nil {
		return WrapExitError(ExitCommandError, "failed to create schema", err)
	}
	if err := p.Initialize(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize runtime", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "runtime started, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	return nil
}
