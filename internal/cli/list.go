package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/statemill/statemill/persistence"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Properties []string
	Any        bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <class>",
		Short: "List entities of a class",
		Long: `List the entities of a class, ordered by id. With --property
name=value filters the secondary property index; repeat the flag to
combine predicates (AND by default, OR with --any).

Example:
  statemill list --db ./shop.db shopping.Basket
  statemill list --db ./shop.db shopping.Basket --property size=2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			class := args[0]

			p, db, err := openRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()
			defer p.Close()

			var entities []persistence.EntityWithID
			if len(opts.Properties) == 0 {
				entities, err = p.List(class)
			} else {
				var props map[string]string
				props, err = parseProperties(opts.Properties)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --property", err)
				}
				combine := persistence.And
				if opts.Any {
					combine = persistence.Or
				}
				entities, err = p.GetByProperties(class, props, combine)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list entities", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			var text strings.Builder
			for i, e := range entities {
				if i > 0 {
					text.WriteString("\n")
				}
				fmt.Fprintf(&text, "%s/%s %+v", class, e.ID, e.Entity)
			}
			if len(entities) == 0 {
				text.WriteString("(none)")
			}
			return out.Print(entities, text.String())
		},
	}

	cmd.Flags().StringArrayVar(&opts.Properties, "property", nil, "property filter name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Any, "any", false, "combine property filters with OR instead of AND")

	return cmd
}

// parseProperties splits repeated name=value flags into a map.
func parseProperties(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		props[name] = value
	}
	return props, nil
}
