package domain

import (
	"errors"
	"strings"
	"time"
)

// Phase names a pipeline milestone. The external automation pipeline defines
// further phases; only the ones this repository writes are listed.
type Phase string

const (
	PhaseSpecReceived      Phase = "SPEC_RECEIVED"
	PhasePlanning          Phase = "PLANNING"
	PhaseArtifactsUploaded Phase = "ARTIFACTS_UPLOADED"
	PhaseTestsPassed       Phase = "TESTS_PASSED"
	PhaseTestsFailed       Phase = "TESTS_FAILED"
)

// StatusEvent is an append-only log entry.
type StatusEvent struct {
	ID        int64
	RunID     string
	Phase     Phase
	Message   string
	Metadata  Metadata
	CreatedAt time.Time
}

func (e StatusEvent) Validate() error {
	if strings.TrimSpace(string(e.Phase)) == "" {
		return errors.New("phase is required")
	}
	if strings.TrimSpace(e.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}
