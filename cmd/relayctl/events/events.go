package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
	repopg "github.com/animus-labs/spec-relay/internal/repo/postgres"
	"github.com/spf13/cobra"
)

// openEvents connects the status event log. Replaced in tests.
var openEvents = func(ctx context.Context) (repo.StatusEventRepository, io.Closer, error) {
	db, err := cliutil.OpenDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	return repopg.NewStatusEventStore(db), db, nil
}

type eventJSON struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id,omitempty"`
	Phase     domain.Phase    `json:"phase"`
	Message   string          `json:"message"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewCmd creates `relayctl events`.
func NewCmd() *cobra.Command {
	var (
		filter  repo.StatusEventFilter
		phase   string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:           "events",
		Short:         "List pipeline status events, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			filter.Phase = domain.Phase(strings.ToUpper(strings.TrimSpace(phase)))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			store, closer, err := openEvents(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			list, err := store.ListEvents(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			return writeTable(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&filter.RunID, "run-id", "", "Only events of this run")
	cmd.Flags().StringVar(&phase, "phase", "", "Only events of this phase (e.g. SPEC_RECEIVED)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum events to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as a JSON array")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Query timeout")
	return cmd
}

func writeTable(w io.Writer, list []domain.StatusEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tRUN\tPHASE\tMESSAGE")
	for _, ev := range list {
		run := ev.RunID
		if run == "" {
			run = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.CreatedAt.UTC().Format(time.RFC3339), run, ev.Phase, ev.Message)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, list []domain.StatusEvent) error {
	out := make([]eventJSON, 0, len(list))
	for _, ev := range list {
		out = append(out, eventJSON{
			ID:        ev.ID,
			RunID:     ev.RunID,
			Phase:     ev.Phase,
			Message:   ev.Message,
			Metadata:  ev.Metadata,
			CreatedAt: ev.CreatedAt.UTC(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
