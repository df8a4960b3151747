package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) SprintForSpec(ctx context.Context, specID string) (domain.Sprint, error) {
	if s == nil || s.db == nil {
		return domain.Sprint{}, fmt.Errorf("run store not initialized")
	}
	specID = strings.TrimSpace(specID)
	if specID == "" {
		return domain.Sprint{}, fmt.Errorf("spec id is required")
	}
	var (
		sprint  domain.Sprint
		dodJSON []byte
	)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, spec_id, label, dod_json, created_at
		 FROM sprints
		 WHERE spec_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		specID,
	)
	if err := row.Scan(&sprint.ID, &sprint.SpecID, &sprint.Label, &dodJSON, &sprint.CreatedAt); err != nil {
		return domain.Sprint{}, handleNotFound(err)
	}
	dod, err := decodeMetadata(dodJSON)
	if err != nil {
		return domain.Sprint{}, fmt.Errorf("decode dod: %w", err)
	}
	sprint.DoD = dod
	sprint.CreatedAt = sprint.CreatedAt.UTC()
	return sprint, nil
}

func (s *RunStore) CreateSprint(ctx context.Context, sprint domain.Sprint) (domain.Sprint, error) {
	if s == nil || s.db == nil {
		return domain.Sprint{}, fmt.Errorf("run store not initialized")
	}
	if err := sprint.Validate(); err != nil {
		return domain.Sprint{}, err
	}
	dodJSON, err := encodeMetadata(sprint.DoD)
	if err != nil {
		return domain.Sprint{}, fmt.Errorf("encode dod: %w", err)
	}
	created := domain.Sprint{
		SpecID: strings.TrimSpace(sprint.SpecID),
		Label:  strings.TrimSpace(sprint.Label),
		DoD:    sprint.DoD.Clone(),
	}
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO sprints (spec_id, label, dod_json)
		 VALUES ($1,$2,$3)
		 RETURNING id, created_at`,
		created.SpecID,
		created.Label,
		dodJSON,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return domain.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	created.CreatedAt = created.CreatedAt.UTC()
	return created, nil
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return domain.Run{}, err
	}
	summaryJSON, err := encodeMetadata(run.Summary)
	if err != nil {
		return domain.Run{}, fmt.Errorf("encode summary: %w", err)
	}
	created := domain.Run{
		SprintID: strings.TrimSpace(run.SprintID),
		CIRunID:  strings.TrimSpace(run.CIRunID),
		Result:   run.Result,
		Summary:  run.Summary.Clone(),
	}
	result := sql.NullString{String: string(run.Result), Valid: run.Result != ""}
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO runs (sprint_id, ci_run_id, result, summary_json)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, started_at`,
		created.SprintID,
		created.CIRunID,
		result,
		summaryJSON,
	).Scan(&created.ID, &created.StartedAt)
	if err != nil {
		return domain.Run{}, fmt.Errorf("insert run: %w", err)
	}
	created.StartedAt = created.StartedAt.UTC()
	return created, nil
}
