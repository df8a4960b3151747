package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/animus-labs/spec-relay/internal/dispatch"
	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
	"github.com/animus-labs/spec-relay/internal/platform/httpserver"
	"github.com/animus-labs/spec-relay/internal/repo"
	"github.com/animus-labs/spec-relay/internal/service/ingest"
	"github.com/animus-labs/spec-relay/internal/service/notify"
	store "github.com/animus-labs/spec-relay/internal/storage/objectstore"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memStore) PutNew(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	if _, ok := m.objects[bucket+"/"+key]; ok {
		return store.ErrAlreadyExists
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.local/%s/%s?ttl=%s", bucket, key, ttl), nil
}

func (m *memStore) Stat(context.Context, string, string) (store.ObjectInfo, error) {
	return store.ObjectInfo{}, errors.New("not implemented")
}

func (m *memStore) Delete(context.Context, string, string) error {
	return errors.New("not implemented")
}

type memSpecs struct {
	mu    sync.Mutex
	specs []domain.Spec
}

func (m *memSpecs) CreateSpec(_ context.Context, spec domain.Spec) (domain.Spec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", len(m.specs)+1)
	m.specs = append(m.specs, spec)
	return spec, nil
}

func (m *memSpecs) GetSpec(context.Context, string) (domain.Spec, error) {
	return domain.Spec{}, repo.ErrNotFound
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (m *memEvents) LogEvent(_ context.Context, ev domain.StatusEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return int64(len(m.events)), nil
}

func (m *memEvents) ListEvents(context.Context, repo.StatusEventFilter) ([]domain.StatusEvent, error) {
	return nil, nil
}

type stubDispatcher struct {
	mu       sync.Mutex
	triggers []dispatch.Trigger
	err      error
}

func (s *stubDispatcher) Dispatch(_ context.Context, trigger dispatch.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trigger)
	return s.err
}

type stubNotifier struct {
	got domain.ReportSummary
	res notify.Result
	err error
}

func (s *stubNotifier) Notify(_ context.Context, summary domain.ReportSummary) (notify.Result, error) {
	s.got = summary
	return s.res, s.err
}

type harness struct {
	handler    http.Handler
	store      *memStore
	specs      *memSpecs
	events     *memEvents
	dispatcher *stubDispatcher
	notifier   *stubNotifier
}

func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newHarness(t *testing.T, mail mailbox) *harness {
	t.Helper()
	h := &harness{
		store:      &memStore{},
		specs:      &memSpecs{},
		events:     &memEvents{},
		dispatcher: &stubDispatcher{},
		notifier:   &stubNotifier{res: notify.Result{ArtifactsCount: 2, Sent: true}},
	}
	logger := newTestLogger(t)
	svc, err := ingest.NewService(h.specs, h.events, h.store, h.dispatcher, "specifications", time.Hour, logger)
	if err != nil {
		t.Fatalf("ingest.NewService err=%v", err)
	}
	gmailCfg := gmail.Config{Query: "is:unread", MaxResults: 10}
	api := newRelayAPI(logger, svc, h.notifier, mail, gmailCfg, "acme/control", 24*time.Hour)
	mux := http.NewServeMux()
	api.register(mux)
	h.handler = httpserver.Wrap(logger, "test", mux)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "http://relay.test"+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestWebhookSpecSuccess(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/webhook/spec", `{"repo":"acme/app","spec_yaml":"title: x\n","project_name":"App","requester_email":"dev@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["workflow_triggered"] != true || body["branch"] != "main" || body["repo"] != "acme/app" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["spec_id"] != h.specs.specs[0].ID || h.specs.specs[0].CreatedBy != "dev@example.com" {
		t.Fatalf("spec id mismatch: %v vs %+v", body["spec_id"], h.specs.specs[0])
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
	md := h.dispatcher.triggers[0].Metadata
	if md["project_name"] != "App" || md["triggered_by"] != "webhook" {
		t.Fatalf("unexpected dispatch metadata: %v", md)
	}
}

func TestWebhookSpecRepeatedCallsGetDistinctPaths(t *testing.T) {
	h := newHarness(t, nil)
	payload := `{"repo":"acme/app","spec_yaml":"title: same\n"}`
	for i := 0; i < 3; i++ {
		if rec := h.do(t, http.MethodPost, "/webhook/spec", payload); rec.Code != http.StatusOK {
			t.Fatalf("call %d status=%d", i, rec.Code)
		}
	}
	seen := map[string]bool{}
	for _, spec := range h.specs.specs {
		if seen[spec.StoragePath] {
			t.Fatalf("duplicate storage path %q", spec.StoragePath)
		}
		seen[spec.StoragePath] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 records, got %d", len(seen))
	}
}

func TestWebhookSpecMissingFields(t *testing.T) {
	for _, payload := range []string{`{"spec_yaml":"a: b"}`, `{"repo":"acme/app"}`, `{}`} {
		h := newHarness(t, nil)
		rec := h.do(t, http.MethodPost, "/webhook/spec", payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", payload, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "Missing required fields" {
			t.Fatalf("%s: unexpected body %v", payload, body)
		}
		if len(h.store.objects) != 0 || len(h.specs.specs) != 0 || len(h.events.events) != 0 {
			t.Fatalf("%s: side effects performed", payload)
		}
	}
}

func TestWebhookSpecStorageFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.putErr = errors.New("minio down")
	rec := h.do(t, http.MethodPost, "/webhook/spec", `{"repo":"acme/app","spec_yaml":"a: b"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["code"] != apierr.CodeStorageFailed || body["error"] != "Failed to store specification" {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(h.specs.specs) != 0 {
		t.Fatalf("spec recorded after storage failure")
	}
}

func TestWebhookSpecDispatchFailureIs207(t *testing.T) {
	h := newHarness(t, nil)
	h.dispatcher.err = &dispatch.APIError{StatusCode: http.StatusNotFound, Body: "Not Found"}
	rec := h.do(t, http.MethodPost, "/webhook/spec", `{"repo":"acme/app","spec_yaml":"a: b"}`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["workflow_triggered"] != false || body["success"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if id, _ := body["spec_id"].(string); id == "" || id != h.specs.specs[0].ID {
		t.Fatalf("spec_id=%v", body["spec_id"])
	}
	if !strings.Contains(body["details"].(string), "status=404") {
		t.Fatalf("details=%v", body["details"])
	}
}

func TestWebhookSpecRejectsOtherMethods(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/webhook/spec", "/gmail/push", "/ingest/email", "/notify/report"} {
		rec := h.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status=%d", path, rec.Code)
		}
	}
}

func TestPreflightOnEveryEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/webhook/spec", "/gmail/push", "/ingest/email", "/notify/report"} {
		rec := h.do(t, http.MethodOptions, path, "")
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: status=%d body=%q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestIngestEmailStoresBodyForTargetRepo(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/ingest/email", `{"subject":"Mission order","body":"title: from mail\n"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	spec := h.specs.specs[0]
	if spec.Repo != "acme/control" || spec.Branch != "spec/auto" || spec.CreatedBy != "gmail-push" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	url, _ := body["spec_url"].(string)
	if body["spec_id"] != spec.ID || !strings.Contains(url, "ttl=24h0m0s") {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestIngestEmailFallsBackToSpecAttachment(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/ingest/email", `{"attachments":[{"filename":"notes.txt","content":"x"},{"filename":"login.yaml","content":"title: a"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.HasSuffix(h.specs.specs[0].StoragePath, "-login.yaml") {
		t.Fatalf("storage path=%q", h.specs.specs[0].StoragePath)
	}
}

func TestIngestEmailWithoutContentIs400(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/ingest/email", `{"subject":"empty"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestNotifyReport(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/notify/report", `{"run_id":"run-1","result":"PASSED","coverage":0.9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["artifacts_count"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
	if h.notifier.got.RunID != "run-1" || *h.notifier.got.Coverage != 0.9 {
		t.Fatalf("unexpected summary: %+v", h.notifier.got)
	}
}

func TestNotifyReportErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = apierr.BadInput(`result must be "PASSED" or "FAILED"`, nil)
	if rec := h.do(t, http.MethodPost, "/notify/report", `{"result":"MAYBE"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	h.notifier.err = apierr.External(errors.New("502"), apierr.CodeDeliveryFailed, "Email sending failed")
	rec := h.do(t, http.MethodPost, "/notify/report", `{"result":"FAILED"}`)
	if rec.Code != http.StatusInternalServerError || decodeBody(t, rec)["error"] != "Email sending failed" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, http.MethodPost, "/notify/report", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func pushBody(t *testing.T, mailboxAddr string) string {
	t.Helper()
	inner := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf(`{"emailAddress":%q,"historyId":1234}`, mailboxAddr)))
	return fmt.Sprintf(`{"message":{"data":%q,"messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`, inner)
}
