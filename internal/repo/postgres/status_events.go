package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
)

type StatusEventStore struct {
	db DB
}

func NewStatusEventStore(db DB) *StatusEventStore {
	if db == nil {
		return nil
	}
	return &StatusEventStore{db: db}
}

func (s *StatusEventStore) LogEvent(ctx context.Context, event domain.StatusEvent) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("status event store not initialized")
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	metadataJSON, err := encodeMetadata(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO status_events (run_id, phase, message, metadata)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id`,
		nullString(event.RunID),
		strings.TrimSpace(string(event.Phase)),
		event.Message,
		metadataJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert status event: %w", err)
	}
	return id, nil
}

func (s *StatusEventStore) ListEvents(ctx context.Context, filter repo.StatusEventFilter) ([]domain.StatusEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("status event store not initialized")
	}
	query, args := buildStatusEventListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.StatusEvent, 0)
	for rows.Next() {
		var (
			event        domain.StatusEvent
			runID        *string
			phase        string
			metadataJSON []byte
		)
		if err := rows.Scan(&event.ID, &runID, &phase, &event.Message, &metadataJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		if runID != nil {
			event.RunID = *runID
		}
		event.Phase = domain.Phase(phase)
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		event.Metadata = meta
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	return events, nil
}

func buildStatusEventListQuery(filter repo.StatusEventFilter) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if runID := strings.TrimSpace(filter.RunID); runID != "" {
		args = append(args, runID)
		clauses = append(clauses, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if phase := strings.TrimSpace(string(filter.Phase)); phase != "" {
		args = append(args, phase)
		clauses = append(clauses, fmt.Sprintf("phase = $%d", len(args)))
	}

	query := `SELECT id, run_id, phase, message, metadata, created_at FROM status_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}
