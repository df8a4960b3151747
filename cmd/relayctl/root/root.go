package root

import (
	"github.com/animus-labs/spec-relay/cmd/relayctl/createrun"
	"github.com/animus-labs/spec-relay/cmd/relayctl/dodgate"
	"github.com/animus-labs/spec-relay/cmd/relayctl/events"
	"github.com/animus-labs/spec-relay/cmd/relayctl/migrate"
	"github.com/animus-labs/spec-relay/cmd/relayctl/render"
	"github.com/animus-labs/spec-relay/cmd/relayctl/trigger"
	"github.com/animus-labs/spec-relay/cmd/relayctl/upload"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for relayctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Operator tooling for the spec relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(migrate.NewCmd())
	cmd.AddCommand(createrun.NewCmd())
	cmd.AddCommand(render.NewCmd())
	cmd.AddCommand(dodgate.NewCmd())
	cmd.AddCommand(upload.NewCmd())
	cmd.AddCommand(trigger.NewCmd())
	cmd.AddCommand(events.NewCmd())

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
