package createrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/animus-labs/spec-relay/internal/dod"
	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
	repopg "github.com/animus-labs/spec-relay/internal/repo/postgres"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type specFinder interface {
	GetSpec(ctx context.Context, id string) (domain.Spec, error)
	LatestSpec(ctx context.Context) (domain.Spec, error)
}

type deps struct {
	specs  specFinder
	runs   repo.RunRepository
	events repo.StatusEventRepository
	close  func() error
}

// openDeps connects the database. Replaced in tests.
var openDeps = func(ctx context.Context) (deps, error) {
	db, err := cliutil.OpenDB(ctx)
	if err != nil {
		return deps{}, err
	}
	return deps{
		specs:  repopg.NewSpecStore(db),
		runs:   repopg.NewRunStore(db),
		events: repopg.NewStatusEventStore(db),
		close:  db.Close,
	}, nil
}

// RunContext is what later CI steps need to report against the run.
type RunContext struct {
	RunID    string `json:"run_id"`
	SprintID string `json:"sprint_id"`
	SpecID   string `json:"spec_id"`
	CIRunID  string `json:"ci_run_id"`
}

type options struct {
	specID       string
	ciRunID      string
	sprintLabel  string
	contextPath  string
	githubOutput string
	timeout      time.Duration
}

// NewCmd creates `relayctl create-run`.
func NewCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "create-run",
		Short:         "Open a run for a specification's sprint and record the PLANNING event",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.ciRunID) == "" {
				opts.ciRunID = uuid.NewString()
			}
			if strings.TrimSpace(opts.sprintLabel) == "" {
				return fmt.Errorf("--sprint-label must not be empty")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return run(ctx, cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.specID, "spec-id", os.Getenv("SPEC_ID"), "Spec to run (env SPEC_ID; defaults to the latest recorded spec)")
	cmd.Flags().StringVar(&opts.ciRunID, "ci-run-id", os.Getenv("GITHUB_RUN_ID"), "CI run id (env GITHUB_RUN_ID; random when unset)")
	cmd.Flags().StringVar(&opts.sprintLabel, "sprint-label", domain.DefaultSprintLabel, "Label for a sprint created for the spec")
	cmd.Flags().StringVar(&opts.contextPath, "context", filepath.Join("artifacts", "run_context.json"), "Where to write the run context (empty to skip)")
	cmd.Flags().StringVar(&opts.githubOutput, "github-output", os.Getenv("GITHUB_OUTPUT"), "Step output file to append run_id, sprint_id and spec_id to (env GITHUB_OUTPUT)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	logger := cliutil.Logger(cmd.ErrOrStderr())
	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if d.close != nil {
			_ = d.close()
		}
	}()

	rc, err := createRun(ctx, d, opts, logger)
	if err != nil {
		return err
	}

	if opts.githubOutput != "" {
		if err := appendOutputs(opts.githubOutput, rc); err != nil {
			return fmt.Errorf("write step outputs: %w", err)
		}
	}
	if opts.contextPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.contextPath), 0o755); err != nil {
			return err
		}
		if err := cliutil.WriteJSONFile(opts.contextPath, rc); err != nil {
			return fmt.Errorf("write run context: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), rc.RunID)
	return nil
}

func createRun(ctx context.Context, d deps, opts options, logger *slog.Logger) (RunContext, error) {
	spec, err := resolveSpec(ctx, d.specs, strings.TrimSpace(opts.specID))
	if err != nil {
		return RunContext{}, err
	}

	sprint, err := d.runs.SprintForSpec(ctx, spec.ID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		sprint, err = d.runs.CreateSprint(ctx, domain.Sprint{
			SpecID: spec.ID,
			Label:  strings.TrimSpace(opts.sprintLabel),
			DoD:    dod.DefaultCriteria().Document(),
		})
		if err != nil {
			return RunContext{}, err
		}
		logger.Info("sprint created", "sprint_id", sprint.ID, "spec_id", spec.ID, "label", sprint.Label)
	case err != nil:
		return RunContext{}, err
	}

	ciRunID := strings.TrimSpace(opts.ciRunID)
	created, err := d.runs.CreateRun(ctx, domain.Run{
		SprintID: sprint.ID,
		CIRunID:  ciRunID,
		Summary:  domain.Metadata{"status": "STARTED"},
	})
	if err != nil {
		return RunContext{}, err
	}
	logger.Info("run created", "run_id", created.ID, "sprint_id", sprint.ID, "ci_run_id", ciRunID)

	if _, err := d.events.LogEvent(ctx, domain.StatusEvent{
		RunID:   created.ID,
		Phase:   domain.PhasePlanning,
		Message: fmt.Sprintf("Run %s started", ciRunID),
		Metadata: domain.Metadata{
			"sprint_id": sprint.ID,
			"spec_id":   spec.ID,
		},
	}); err != nil {
		logger.Warn("status event not recorded", "run_id", created.ID, "phase", domain.PhasePlanning, "error", err)
	}

	return RunContext{RunID: created.ID, SprintID: sprint.ID, SpecID: spec.ID, CIRunID: ciRunID}, nil
}

func resolveSpec(ctx context.Context, specs specFinder, specID string) (domain.Spec, error) {
	if specID != "" {
		spec, err := specs.GetSpec(ctx, specID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Spec{}, fmt.Errorf("spec %s not found", specID)
		}
		return spec, err
	}
	spec, err := specs.LatestSpec(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Spec{}, errors.New("no specification recorded yet; ingest one first")
	}
	return spec, err
}

func appendOutputs(path string, rc RunContext) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "run_id=%s\nsprint_id=%s\nspec_id=%s\n", rc.RunID, rc.SprintID, rc.SpecID)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
