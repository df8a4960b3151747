package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func pushBody(t *testing.T, data string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message":      map[string]any{"data": data, "messageId": "m-1", "publishTime": "2024-01-01T00:00:00Z"},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestDecodePushDecodesNotification(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"ops@example.com","historyId":"12345"}`))
	n, err := DecodePush(pushBody(t, inner))
	if err != nil {
		t.Fatalf("DecodePush err=%v", err)
	}
	if n.EmailAddress != "ops@example.com" || n.HistoryID.String() != "12345" || n.MessageID != "m-1" {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestDecodePushAcceptsNumericHistoryID(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"ops@example.com","historyId":987}`))
	n, err := DecodePush(pushBody(t, inner))
	if err != nil {
		t.Fatalf("DecodePush err=%v", err)
	}
	if n.HistoryID.String() != "987" {
		t.Fatalf("historyId=%s, want 987", n.HistoryID)
	}
}

func TestDecodePushRejectsMissingData(t *testing.T) {
	_, err := DecodePush([]byte(`{"message":{"messageId":"m-1"}}`))
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("err=%v, want ErrInvalidEnvelope", err)
	}
	_, err = DecodePush([]byte(`not json`))
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("err=%v, want ErrInvalidEnvelope", err)
	}
	_, err = DecodePush(pushBody(t, "!!!"))
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("err=%v, want ErrInvalidEnvelope for bad base64", err)
	}
}

func TestDecodeURLBase64ToleratesPaddingAndAlphabet(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 'a'}
	for _, enc := range []string{
		base64.URLEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(raw),
	} {
		got, err := decodeURLBase64(enc)
		if err != nil {
			t.Fatalf("decode %q err=%v", enc, err)
		}
		if string(got) != string(raw) {
			t.Fatalf("decode %q = %v, want %v", enc, got, raw)
		}
	}
}

type stubFetcher struct {
	data  map[string]string
	fail  map[string]bool
	calls int
}

func (s *stubFetcher) GetAttachment(ctx context.Context, mailbox, messageID, attachmentID string) (string, error) {
	s.calls++
	if s.fail[attachmentID] {
		return "", errors.New("fetch failed")
	}
	return s.data[attachmentID], nil
}

func TestExtractSkipsAndDropsFailedParts(t *testing.T) {
	fetcher := &stubFetcher{
		data: map[string]string{
			"att-1": base64.RawURLEncoding.EncodeToString([]byte("name: one\n")),
			"att-3": "%%%not-base64%%%",
		},
		fail: map[string]bool{"att-2": true},
	}
	msg := Message{
		ID: "msg-1",
		Payload: Part{
			MimeType: "multipart/mixed",
			Parts: []Part{
				{MimeType: "text/plain", Body: Body{Data: base64.RawURLEncoding.EncodeToString([]byte("hello"))}},
				{Filename: "spec.yaml", MimeType: "text/yaml", Body: Body{AttachmentID: "att-1"}},
				{Filename: "broken.yaml", MimeType: "text/yaml", Body: Body{AttachmentID: "att-2"}},
				{Filename: "garbled.yaml", MimeType: "text/yaml", Body: Body{AttachmentID: "att-3"}},
				{Filename: "empty.txt", MimeType: "text/plain"},
				{
					MimeType: "multipart/alternative",
					Parts: []Part{
						{Filename: "inline-spec.yml", MimeType: "text/yaml", Body: Body{Data: base64.URLEncoding.EncodeToString([]byte("name: two\n"))}},
					},
				},
			},
		},
	}

	ex := NewExtractor(fetcher, testLogger())
	seq := ex.Extract(context.Background(), "ops@example.com", msg)

	var got []Attachment
	for att := range seq {
		got = append(got, att)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attachments, got %d: %+v", len(got), got)
	}
	if got[0].Filename != "spec.yaml" || string(got[0].Content) != "name: one\n" || got[0].MimeType != "text/yaml" {
		t.Fatalf("unexpected first attachment: %+v", got[0])
	}
	if got[1].Filename != "inline-spec.yml" || string(got[1].Content) != "name: two\n" {
		t.Fatalf("unexpected second attachment: %+v", got[1])
	}
	if fetcher.calls != 3 {
		t.Fatalf("fetch calls=%d, want 3", fetcher.calls)
	}

	for range seq {
		t.Fatalf("sequence must not restart")
	}
	if fetcher.calls != 3 {
		t.Fatalf("second iteration must not fetch again, calls=%d", fetcher.calls)
	}
}

func TestExtractStopsWhenConsumerBreaks(t *testing.T) {
	fetcher := &stubFetcher{data: map[string]string{
		"a": base64.RawURLEncoding.EncodeToString([]byte("a")),
		"b": base64.RawURLEncoding.EncodeToString([]byte("b")),
	}}
	msg := Message{ID: "m", Payload: Part{Parts: []Part{
		{Filename: "a.yaml", Body: Body{AttachmentID: "a"}},
		{Filename: "b.yaml", Body: Body{AttachmentID: "b"}},
	}}}
	for range NewExtractor(fetcher, testLogger()).Extract(context.Background(), "x", msg) {
		break
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetch calls=%d, want 1", fetcher.calls)
	}
}

func TestIsSpecAttachment(t *testing.T) {
	cases := map[string]bool{
		"project.yaml":      true,
		"PROJECT.YML":       true,
		"my-spec.txt":       true,
		"Specification.pdf": true,
		"invoice.pdf":       false,
		"notes.yaml.bak":    false,
		"":                  false,
	}
	for name, want := range cases {
		if got := IsSpecAttachment(name); got != want {
			t.Fatalf("IsSpecAttachment(%q)=%v, want %v", name, got, want)
		}
	}
}

func TestOAuthClientRefreshesAndCallsAPI(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" || r.Form.Get("client_id") != "cid" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/gmail/v1/users/ops@example.com/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(r.URL.Query().Get("q"), "is:unread") || r.URL.Query().Get("maxResults") != "10" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}]}`)
	})
	mux.HandleFunc("/gmail/v1/users/ops@example.com/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Method != http.MethodPost || len(body["removeLabelIds"]) != 1 || body["removeLabelIds"][0] != "UNREAD" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"id":"m1"}`)
	})
	mux.HandleFunc("/gmail/v1/users/ops@example.com/messages/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewOAuthClient(context.Background(), Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt",
		TokenURL:     srv.URL + "/token",
		APIURL:       srv.URL + "/gmail/v1",
		MaxResults:   10,
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewOAuthClient err=%v", err)
	}

	refs, err := client.ListMessages(context.Background(), "ops@example.com", DefaultQuery, 10)
	if err != nil {
		t.Fatalf("ListMessages err=%v", err)
	}
	if len(refs) != 2 || refs[0].ID != "m1" {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	if err := client.MarkRead(context.Background(), "ops@example.com", "m1"); err != nil {
		t.Fatalf("MarkRead err=%v", err)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token calls=%d, want 1 (token reused)", tokenCalls.Load())
	}

	_, err = client.GetMessage(context.Background(), "ops@example.com", "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("GetMessage err=%v, want APIError 404", err)
	}
}

func TestNewOAuthClientRequiresCredentials(t *testing.T) {
	if _, err := NewOAuthClient(context.Background(), Config{APIURL: DefaultAPIURL, TokenURL: DefaultTokenURL}, nil); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestMessageHeaderCaseInsensitive(t *testing.T) {
	msg := Message{Payload: Part{Headers: []Header{{Name: "Subject", Value: "Project spec"}, {Name: "From", Value: "a@b.c"}}}}
	if msg.Header("subject") != "Project spec" || msg.Header("FROM") != "a@b.c" || msg.Header("Date") != "" {
		t.Fatalf("unexpected header lookup")
	}
}
