// Package dod evaluates a run summary against a sprint's Definition of Done.
package dod

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/animus-labs/spec-relay/internal/domain"
	"gopkg.in/yaml.v3"
)

// Criteria is the Definition of Done of a sprint. Unit tests passing is
// always required; the other checks apply only when set.
type Criteria struct {
	CoverageMin   *float64 `yaml:"coverage_min" json:"coverage_min,omitempty"`
	E2EPass       bool     `yaml:"e2e_pass" json:"e2e_pass"`
	LighthouseMin *float64 `yaml:"lighthouse_min" json:"lighthouse_min,omitempty"`
}

// DefaultCriteria matches the sprint template used by the automation pipeline.
func DefaultCriteria() Criteria {
	coverage, lighthouse := 0.80, 85.0
	return Criteria{CoverageMin: &coverage, E2EPass: true, LighthouseMin: &lighthouse}
}

func (c Criteria) Validate() error {
	if c.CoverageMin != nil && (*c.CoverageMin < 0 || *c.CoverageMin > 1) {
		return fmt.Errorf("coverage_min must be within [0,1], got %v", *c.CoverageMin)
	}
	if c.LighthouseMin != nil && *c.LighthouseMin < 0 {
		return fmt.Errorf("lighthouse_min must be >= 0, got %v", *c.LighthouseMin)
	}
	return nil
}

// Document is the criteria as stored with a sprint.
func (c Criteria) Document() domain.Metadata {
	doc := domain.Metadata{"e2e_pass": c.E2EPass}
	if c.CoverageMin != nil {
		doc["coverage_min"] = *c.CoverageMin
	}
	if c.LighthouseMin != nil {
		doc["lighthouse_min"] = *c.LighthouseMin
	}
	return doc
}

func ParseCriteria(r io.Reader) (Criteria, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Criteria{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Criteria{}, errors.New("criteria document is empty")
	}
	var c Criteria
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Criteria{}, fmt.Errorf("decode criteria: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

type Evaluation struct {
	Passed  bool     `json:"passed"`
	Details []string `json:"details"`
	Score   int      `json:"score"`
	Total   int      `json:"total_criteria"`
}

// Result maps the evaluation to a run result.
func (e Evaluation) Result() domain.RunResult {
	if e.Passed {
		return domain.RunPassed
	}
	return domain.RunFailed
}

// Phase is the status event phase recorded for the evaluation.
func (e Evaluation) Phase() domain.Phase {
	if e.Passed {
		return domain.PhaseTestsPassed
	}
	return domain.PhaseTestsFailed
}

func (e Evaluation) Message() string {
	return fmt.Sprintf("DoD %s: %d/%d criteria", e.Result(), e.Score, e.Total)
}

// Evaluate checks summary against criteria. Missing measurements count as
// zero or false.
func Evaluate(summary domain.ReportSummary, criteria Criteria) Evaluation {
	ev := Evaluation{Passed: true, Details: []string{}}
	check := func(ok bool, pass, fail string) {
		ev.Total++
		if ok {
			ev.Score++
			ev.Details = append(ev.Details, "✅ "+pass)
			return
		}
		ev.Passed = false
		ev.Details = append(ev.Details, "❌ "+fail)
	}

	if criteria.CoverageMin != nil {
		actual, want := valueOr(summary.Coverage), *criteria.CoverageMin
		check(actual >= want,
			fmt.Sprintf("Coverage: %.1f%% >= %.1f%%", actual*100, want*100),
			fmt.Sprintf("Coverage: %.1f%% < %.1f%%", actual*100, want*100))
	}
	if criteria.E2EPass {
		check(summary.E2EPass != nil && *summary.E2EPass, "E2E tests: passed", "E2E tests: failed")
	}
	check(summary.UnitPass != nil && *summary.UnitPass, "Unit tests: passed", "Unit tests: failed")
	if criteria.LighthouseMin != nil {
		actual, want := valueOr(summary.Lighthouse), *criteria.LighthouseMin
		check(actual >= want,
			fmt.Sprintf("Lighthouse: %g >= %g", actual, want),
			fmt.Sprintf("Lighthouse: %g < %g", actual, want))
	}
	return ev
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
