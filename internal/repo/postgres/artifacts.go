package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
)

type ArtifactStore struct {
	db DB
}

func NewArtifactStore(db DB) *ArtifactStore {
	if db == nil {
		return nil
	}
	return &ArtifactStore{db: db}
}

func (s *ArtifactStore) CreateArtifact(ctx context.Context, artifact domain.Artifact) (domain.Artifact, error) {
	if s == nil || s.db == nil {
		return domain.Artifact{}, fmt.Errorf("artifact store not initialized")
	}
	if err := artifact.Validate(); err != nil {
		return domain.Artifact{}, err
	}
	created := domain.Artifact{
		RunID:       strings.TrimSpace(artifact.RunID),
		Kind:        strings.TrimSpace(artifact.Kind),
		StoragePath: strings.TrimSpace(artifact.StoragePath),
		SizeBytes:   artifact.SizeBytes,
	}
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO artifacts (run_id, kind, storage_path, size_bytes)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, created_at`,
		created.RunID,
		created.Kind,
		created.StoragePath,
		created.SizeBytes,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Artifact{}, fmt.Errorf("insert artifact %s: %w", created.StoragePath, repo.ErrConflict)
		}
		return domain.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	created.CreatedAt = created.CreatedAt.UTC()
	return created, nil
}

func (s *ArtifactStore) ListArtifactsByRun(ctx context.Context, runID string) ([]domain.Artifact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("artifact store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, kind, storage_path, size_bytes, created_at
		 FROM artifacts
		 WHERE run_id = $1
		 ORDER BY created_at ASC, storage_path ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]domain.Artifact, 0)
	for rows.Next() {
		var artifact domain.Artifact
		if err := rows.Scan(&artifact.ID, &artifact.RunID, &artifact.Kind, &artifact.StoragePath, &artifact.SizeBytes, &artifact.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifact.CreatedAt = artifact.CreatedAt.UTC()
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}
