package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/statemill/statemill/example/shopping"
	"github.com/statemill/statemill/persistence"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Payload string
	Wait    time.Duration
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <class> <event> [id]",
		Short: "Publish a signal to an entity",
		Long: `Durably publish an event to the entity (class, id) and wait for the
worker to apply it. The event name must be registered, e.g.
shopping.Change; its payload is given as JSON. When id is omitted a
fresh UUID is generated, creating a new entity.

Example:
  statemill publish --db ./shop.db shopping.Basket fsm.Create
  statemill publish --db ./shop.db shopping.Basket shopping.Change b-1 \
    --payload '{"items":[{"productId":"p1","quantity":2,"priceCents":500}]}'`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			class, eventName := args[0], args[1]
			id := uuid.NewString()
			if len(args) == 3 {
				id = args[2]
			}

			event, err := decodeEvent(eventName, opts.Payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to decode event payload", err)
			}

			p, db, err := openRuntime(opts.RootOptions)
			if err != nil {
				return err
			}
			defer db.Close()
			defer p.Close()

			if err := p.Initialize(); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize runtime", err)
			}
			if err := p.Signal(class, id, event); err != nil {
				return WrapExitError(ExitFailure, "failed to publish signal", err)
			}
			if !awaitDrain(p, opts.Wait) {
				return NewExitError(ExitFailure, "signal published but not yet applied")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "applied %s to %s/%s\n", eventName, class, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as JSON")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 5*time.Second, "how long to wait for the apply")

	return cmd
}

// decodeEvent parses a JSON payload into the registered event type.
func decodeEvent(eventName, payload string) (any, error) {
	reg := shopping.NewRegistry()
	return persistence.JSON(reg).Deserialize(eventName, []byte(payload))
}
