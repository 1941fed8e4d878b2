package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <class> <id>",
		Short: "Read one entity and its state",
		Long: `Read the entity (class, id) and print it with its current state.

Example:
  statemill get --db ./shop.db shopping.Basket b-1 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			class, id := args[0], args[1]

			p, db, err := openRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()
			defer p.Close()

			entity, state, found, err := p.GetWithState(class, id)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read entity", err)
			}
			if !found {
				return NewExitError(ExitFailure, fmt.Sprintf("no entity %s/%s", class, id))
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Print(
				map[string]any{"id": id, "state": state.String(), "entity": entity},
				fmt.Sprintf("%s/%s [%s] %+v", class, id, state, entity),
			)
		},
	}
	return cmd
}
