package dodgate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/animus-labs/spec-relay/internal/dod"
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

// NewCmd creates `relayctl dod-gate`.
func NewCmd() *cobra.Command {
	var summaryPath, criteriaPath, runID string
	cmd := &cobra.Command{
		Use:           "dod-gate",
		Short:         "Evaluate a run summary against the Definition of Done; exits 1 when it fails",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(summaryPath) == "" {
				return fmt.Errorf("missing required flag: --summary")
			}
			criteria := dod.DefaultCriteria()
			if criteriaPath != "" {
				f, err := os.Open(criteriaPath)
				if err != nil {
					return err
				}
				criteria, err = dod.ParseCriteria(f)
				_ = f.Close()
				if err != nil {
					return err
				}
			}
			return run(cmd, summaryPath, criteria, strings.TrimSpace(runID))
		},
	}
	cmd.Flags().StringVarP(&summaryPath, "summary", "s", "", "Path to summary.json (rewritten with the verdict)")
	cmd.Flags().StringVarP(&criteriaPath, "criteria", "c", "", "Path to DoD criteria YAML (defaults to the sprint template)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id; when set the verdict is recorded as a status event")
	return cmd
}

func run(cmd *cobra.Command, summaryPath string, criteria dod.Criteria, runID string) error {
	logger := cliutil.Logger(cmd.ErrOrStderr())
	summary, raw, err := cliutil.ReadSummary(summaryPath)
	if err != nil {
		return err
	}

	ev := dod.Evaluate(summary, criteria)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "DoD result: %d/%d\n", ev.Score, ev.Total)
	for _, d := range ev.Details {
		fmt.Fprintf(out, "  %s\n", d)
	}

	raw["result"] = string(ev.Result())
	raw["dod_evaluation"] = ev
	if err := cliutil.WriteJSONFile(summaryPath, raw); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if runID != "" {
		if err := recordVerdict(cmd.Context(), runID, ev); err != nil {
			logger.Warn("dod verdict not recorded", "run_id", runID, "error", err)
		} else {
			logger.Info("dod verdict recorded", "run_id", runID, "phase", ev.Phase())
		}
	}

	if !ev.Passed {
		return cliutil.ExitError{Code: 1, Msg: ev.Message()}
	}
	fmt.Fprintln(out, "DoD passed, sprint ready to merge")
	return nil
}

func recordVerdict(ctx context.Context, runID string, ev dod.Evaluation) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	events, closer, err := openEvents(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	_, err = events.LogEvent(ctx, domain.StatusEvent{
		RunID:   runID,
		Phase:   ev.Phase(),
		Message: ev.Message(),
		Metadata: domain.Metadata{
			"score":          ev.Score,
			"total_criteria": ev.Total,
		},
	})
	return err
}
