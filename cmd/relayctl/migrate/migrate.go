package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	repopg "github.com/animus-labs/spec-relay/internal/repo/postgres"
	"github.com/spf13/cobra"
)

// NewCmd creates `relayctl migrate`.
func NewCmd() *cobra.Command {
	var (
		timeout time.Duration
		list    bool
	)
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the embedded database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				migrations, err := repopg.Migrations()
				if err != nil {
					return err
				}
				for _, m := range migrations {
					fmt.Fprintln(cmd.OutOrStdout(), m.Version)
				}
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			db, err := cliutil.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return run(ctx, cmd, db)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	cmd.Flags().BoolVar(&list, "list", false, "List embedded migrations without connecting")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
	logger := cliutil.Logger(cmd.ErrOrStderr())
	applied, err := repopg.Migrate(ctx, db)
	if err != nil {
		return err
	}
	for _, name := range applied {
		logger.Info("migration applied", "version", name)
	}
	logger.Info("migrations complete", "applied", len(applied))
	return nil
}
