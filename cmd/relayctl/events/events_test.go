package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
)

type stubEvents struct {
	filter repo.StatusEventFilter
	list   []domain.StatusEvent
}

func (s *stubEvents) LogEvent(context.Context, domain.StatusEvent) (int64, error) { return 0, nil }

func (s *stubEvents) ListEvents(_ context.Context, filter repo.StatusEventFilter) ([]domain.StatusEvent, error) {
	s.filter = filter
	return s.list, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func withEvents(t *testing.T, s *stubEvents) {
	t.Helper()
	old := openEvents
	openEvents = func(context.Context) (repo.StatusEventRepository, io.Closer, error) {
		return s, nopCloser{}, nil
	}
	t.Cleanup(func() { openEvents = old })
}

func sampleEvents() []domain.StatusEvent {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.StatusEvent{
		{ID: 2, RunID: "run-1", Phase: domain.PhaseTestsPassed, Message: "DoD PASSED: 3/3 criteria", CreatedAt: at.Add(time.Minute)},
		{ID: 1, Phase: domain.PhaseSpecReceived, Message: "Specification received via webhook for acme/app", Metadata: domain.Metadata{"spec_id": "s-1"}, CreatedAt: at},
	}
}

func TestEventsTablePassesFilter(t *testing.T) {
	s := &stubEvents{list: sampleEvents()}
	withEvents(t, s)

	cmd := NewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--run-id", "run-1", "--phase", "tests_passed", "--limit", "5"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if s.filter.RunID != "run-1" || s.filter.Phase != domain.PhaseTestsPassed || s.filter.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", s.filter)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "CREATED") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "2026-03-01T10:01:00Z") || !strings.Contains(lines[1], "TESTS_PASSED") {
		t.Fatalf("unexpected first row: %q", lines[1])
	}
	if !strings.Contains(lines[2], " - ") {
		t.Fatalf("event without run should show a dash: %q", lines[2])
	}
}

func TestEventsJSON(t *testing.T) {
	withEvents(t, &stubEvents{list: sampleEvents()})

	cmd := NewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output not JSON: %v\n%s", err, out.String())
	}
	if len(got) != 2 || got[1]["phase"] != "SPEC_RECEIVED" {
		t.Fatalf("unexpected events: %v", got)
	}
	if meta, _ := got[1]["metadata"].(map[string]any); meta["spec_id"] != "s-1" {
		t.Fatalf("metadata=%v", got[1]["metadata"])
	}
	if _, ok := got[1]["run_id"]; ok {
		t.Fatalf("empty run id should be omitted: %v", got[1])
	}
}

func TestEventsRejectsNegativeLimit(t *testing.T) {
	withEvents(t, &stubEvents{})
	cmd := NewCmd()
	cmd.SetArgs([]string{"--limit", "-1"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for negative limit")
	}
}
