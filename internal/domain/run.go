package domain

import (
	"errors"
	"strings"
	"time"
)

const DefaultSprintLabel = "S1"

// Sprint groups the runs for one specification and carries the Definition
// of Done they are gated on.
type Sprint struct {
	ID        string
	SpecID    string
	Label     string
	DoD       Metadata
	CreatedAt time.Time
}

func (s Sprint) Validate() error {
	if strings.TrimSpace(s.SpecID) == "" {
		return errors.New("spec id is required")
	}
	if strings.TrimSpace(s.Label) == "" {
		return errors.New("sprint label is required")
	}
	return nil
}

// Run is one CI execution of a sprint. Result stays empty until the DoD gate
// decides it.
type Run struct {
	ID        string
	SprintID  string
	CIRunID   string
	Result    RunResult
	Summary   Metadata
	StartedAt time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.SprintID) == "" {
		return errors.New("sprint id is required")
	}
	if strings.TrimSpace(r.CIRunID) == "" {
		return errors.New("ci run id is required")
	}
	if r.Result != "" && !r.Result.Valid() {
		return ErrInvalidResult
	}
	return nil
}
