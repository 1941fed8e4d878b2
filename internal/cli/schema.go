package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the storage schema",
		Long: `Create the runtime's storage schema in the SQLite database,
creating the database file if it does not exist. Idempotent.

Example:
  statemill schema --db ./shop.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, db, err := openRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()
			defer p.Close()

			if err := p.Create(); err != nil {
				return WrapExitError(ExitCommandError, "failed to create schema", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema created")
			return nil
		},
	}
	return cmd
}
