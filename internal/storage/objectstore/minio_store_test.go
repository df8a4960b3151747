package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// fakeS3 accepts conditional PUTs and rejects overwrites with 412. HEAD and
// DELETE work on the stored objects.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/yaml")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPut:
	default:
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	f.puts++
	if _, exists := f.objects[r.URL.Path]; exists && r.Header.Get("If-None-Match") == "*" {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[r.URL.Path] = body
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestStore(t *testing.T, handler http.Handler) *MinioStore {
	t.Helper()
	endpoint := "localhost:9000"
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		u, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatalf("parse url: %v", err)
		}
		endpoint = u.Host
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("minio.New: %v", err)
	}
	store, err := NewMinioStoreWithClient(client)
	if err != nil {
		t.Fatalf("NewMinioStoreWithClient: %v", err)
	}
	return store
}

func TestPutNewRejectsOverwrite(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}}
	store := newTestStore(t, s3)
	ctx := context.Background()
	content := []byte("name: demo\n")

	if err := store.PutNew(ctx, "specifications", "specs/a.yaml", bytes.NewReader(content), int64(len(content)), "text/yaml"); err != nil {
		t.Fatalf("first PutNew err=%v", err)
	}
	err := store.PutNew(ctx, "specifications", "specs/a.yaml", bytes.NewReader(content), int64(len(content)), "text/yaml")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second PutNew err=%v, want ErrAlreadyExists", err)
	}
	if _, ok := s3.objects["/specifications/specs/a.yaml"]; !ok || s3.puts != 2 {
		t.Fatalf("expected one stored object after two attempts, puts=%d", s3.puts)
	}
}

func TestPutNewRequiresKey(t *testing.T) {
	store := newTestStore(t, nil)
	if err := store.PutNew(context.Background(), "specifications", " ", strings.NewReader("x"), 1, "text/yaml"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestPresignGetEmbedsExpiry(t *testing.T) {
	store := newTestStore(t, nil)
	link, err := store.PresignGet(context.Background(), "specifications", "specs/a.yaml", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet err=%v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "3600" {
		t.Fatalf("X-Amz-Expires=%q, want 3600", got)
	}
	if !strings.Contains(u.Path, "/specifications/specs/a.yaml") {
		t.Fatalf("unexpected link path: %s", u.Path)
	}
}

func TestPresignGetRejectsNonPositiveTTL(t *testing.T) {
	store := newTestStore(t, nil)
	if _, err := store.PresignGet(context.Background(), "specifications", "specs/a.yaml", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestNilStoreReturnsError(t *testing.T) {
	var store *MinioStore
	if err := store.PutNew(context.Background(), "b", "k", strings.NewReader(""), 0, ""); err == nil {
		t.Fatalf("expected error from nil store")
	}
}

func TestStatAndDelete(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}}
	store := newTestStore(t, s3)
	ctx := context.Background()

	if _, err := store.Stat(ctx, "automation", "reports/r1/junit/a.xml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat missing err=%v, want ErrNotFound", err)
	}
	content := []byte("<testsuite/>")
	if err := store.PutNew(ctx, "automation", "reports/r1/junit/a.xml", bytes.NewReader(content), int64(len(content)), "application/xml"); err != nil {
		t.Fatalf("PutNew err=%v", err)
	}
	info, err := store.Stat(ctx, "automation", "reports/r1/junit/a.xml")
	if err != nil {
		t.Fatalf("Stat err=%v", err)
	}
	if info.Size != int64(len(content)) || info.ETag == "" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if err := store.Delete(ctx, "automation", "reports/r1/junit/a.xml"); err != nil {
		t.Fatalf("Delete err=%v", err)
	}
	if _, ok := s3.objects["/automation/reports/r1/junit/a.xml"]; ok {
		t.Fatalf("object still present after Delete")
	}
}
