package domain

import (
	"errors"
	"fmt"
)

type RunResult string

const (
	RunPassed RunResult = "PASSED"
	RunFailed RunResult = "FAILED"
)

func (r RunResult) Valid() bool {
	return r == RunPassed || r == RunFailed
}

// ReportSummary is the per-request input of a run report notification.
type ReportSummary struct {
	RunID          string        `json:"run_id,omitempty"`
	Sprint         string        `json:"sprint,omitempty"`
	Result         RunResult     `json:"result"`
	Coverage       *float64      `json:"coverage,omitempty"`
	UnitPass       *bool         `json:"unit_pass,omitempty"`
	E2EPass        *bool         `json:"e2e_pass,omitempty"`
	Lighthouse     *float64      `json:"lighthouse,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	RequesterEmail string        `json:"requester_email,omitempty"`
	Artifacts      []ArtifactRef `json:"artifacts,omitempty"`
}

var ErrInvalidResult = errors.New(`result must be "PASSED" or "FAILED"`)

func (s ReportSummary) Validate() error {
	if !s.Result.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidResult, string(s.Result))
	}
	if s.Coverage != nil && (*s.Coverage < 0 || *s.Coverage > 1) {
		return fmt.Errorf("coverage must be within [0,1], got %v", *s.Coverage)
	}
	return nil
}
