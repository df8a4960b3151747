// Package ingest runs the specification ingestion pipeline: store the
// document, sign a link, record it, log the milestone and dispatch.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/internal/dispatch"
	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
	"github.com/animus-labs/spec-relay/internal/repo"
	store "github.com/animus-labs/spec-relay/internal/storage/objectstore"
	"github.com/google/uuid"
)

const (
	SourceWebhook = "webhook"
	SourceEmail   = "email"
	SourceIngest  = "ingest"

	defaultFilename    = "spec.yaml"
	defaultContentType = "text/yaml"
)

// Stage names the last pipeline state a request reached.
type Stage string

const (
	StageReceived       Stage = "received"
	StageValidated      Stage = "validated"
	StageStored         Stage = "stored"
	StageRecorded       Stage = "recorded"
	StageDispatched     Stage = "dispatched"
	StageDispatchFailed Stage = "dispatch_failed"
)

// Dispatcher forwards a stored specification to the automation pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger dispatch.Trigger) error
}

type Request struct {
	Source      string
	Repo        string
	Branch      string
	Filename    string
	ContentType string
	Content     []byte
	CreatedBy   string
	// LinkTTL overrides the service default for the signed spec link.
	LinkTTL time.Duration
	// Metadata is forwarded in the status event and the dispatch payload.
	Metadata domain.Metadata
}

// Result reports each pipeline outcome independently. A returned Result
// always carries a recorded Spec.
type Result struct {
	Spec    domain.Spec
	SpecURL string
	Stage   Stage

	EventLogged bool
	EventError  error

	Dispatched    bool
	DispatchError error
}

type Service struct {
	specs      repo.SpecRepository
	events     repo.StatusEventRepository
	store      store.Store
	dispatcher Dispatcher
	bucket     string
	linkTTL    time.Duration
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewService builds the pipeline. dispatcher may be nil when no dispatch
// credential is configured; Ingest then fails before any side effect.
func NewService(specs repo.SpecRepository, events repo.StatusEventRepository, objects store.Store, dispatcher Dispatcher, bucket string, linkTTL time.Duration, logger *slog.Logger) (*Service, error) {
	if specs == nil {
		return nil, errors.New("spec repository is required")
	}
	if events == nil {
		return nil, errors.New("status event repository is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if linkTTL <= 0 {
		linkTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		specs:      specs,
		events:     events,
		store:      objects,
		dispatcher: dispatcher,
		bucket:     bucket,
		linkTTL:    linkTTL,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.specs == nil || s.store == nil {
		return Result{}, errors.New("ingest service not initialized")
	}
	repoName := strings.TrimSpace(req.Repo)
	if repoName == "" || len(bytes.TrimSpace(req.Content)) == 0 {
		return Result{Stage: StageReceived}, apierr.BadInput("Missing required fields", map[string]any{
			"required": []string{"repo", "content"},
		})
	}
	if s.dispatcher == nil {
		return Result{Stage: StageReceived}, apierr.NotConfigured("GitHub integration not configured")
	}

	source := normalizeSource(req.Source)
	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		branch = domain.DefaultBranch
	}
	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = source + "-trigger"
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	ttl := req.LinkTTL
	if ttl <= 0 {
		ttl = s.linkTTL
	}
	result := Result{Stage: StageValidated}

	storagePath := s.storagePath(source, req.Filename)
	if err := s.store.PutNew(ctx, s.bucket, storagePath, bytes.NewReader(req.Content), int64(len(req.Content)), contentType); err != nil {
		s.logger.Error("spec upload failed", "source", source, "repo", repoName, "storage_path", storagePath, "error", err)
		return result, apierr.External(err, apierr.CodeStorageFailed, "Failed to store specification")
	}
	result.Stage = StageStored

	signedURL, err := s.store.PresignGet(ctx, s.bucket, storagePath, ttl)
	if err != nil {
		s.logger.Error("spec link signing failed", "storage_path", storagePath, "error", err)
		return result, apierr.External(err, apierr.CodeSignFailed, "Failed to create signed URL")
	}

	created, err := s.specs.CreateSpec(ctx, domain.Spec{
		Repo:        repoName,
		Branch:      branch,
		StoragePath: storagePath,
		CreatedBy:   createdBy,
	})
	if err != nil {
		s.logger.Error("spec record insert failed", "storage_path", storagePath, "error", err)
		return result, apierr.External(err, apierr.CodeRecordFailed, "Failed to create spec record")
	}
	result.Spec = created
	result.SpecURL = signedURL
	result.Stage = StageRecorded

	metadata := req.Metadata.Clone().
		With("repo", repoName).
		With("branch", branch).
		With("trigger_method", source)
	for k, v := range sniffSpec(req.Content) {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}

	result.EventLogged, result.EventError = s.logReceived(ctx, created, source, metadata)

	dispatchMeta := metadata
	if _, set := dispatchMeta["triggered_by"]; !set {
		dispatchMeta = dispatchMeta.With("triggered_by", source)
	}
	err = s.dispatcher.Dispatch(ctx, dispatch.Trigger{
		SpecURL:  signedURL,
		SpecID:   created.ID,
		Metadata: dispatchMeta,
	})
	if err != nil {
		s.logger.Warn("dispatch failed", "spec_id", created.ID, "repo", repoName, "error", err)
		result.Stage = StageDispatchFailed
		result.DispatchError = err
		return result, nil
	}
	s.logger.Info("spec ingested", "spec_id", created.ID, "repo", repoName, "branch", branch, "source", source)
	result.Stage = StageDispatched
	result.Dispatched = true
	return result, nil
}

// logReceived appends SPEC_RECEIVED. Failures are reported, never returned.
func (s *Service) logReceived(ctx context.Context, spec domain.Spec, source string, metadata domain.Metadata) (bool, error) {
	event := domain.StatusEvent{
		Phase:    domain.PhaseSpecReceived,
		Message:  fmt.Sprintf("Specification received via %s for %s", source, spec.Repo),
		Metadata: metadata.With("spec_id", spec.ID),
	}
	if _, err := s.events.LogEvent(ctx, event); err != nil {
		s.logger.Warn("status event not recorded", "spec_id", spec.ID, "phase", event.Phase, "error", err)
		return false, err
	}
	return true, nil
}

// storagePath builds specs/<source>-<unixmillis>-<uuid>-<filename>.
func (s *Service) storagePath(source, filename string) string {
	return fmt.Sprintf("specs/%s-%d-%s-%s", source, s.now().UTC().UnixMilli(), s.newID(), sanitizeFilename(filename))
}

func normalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return SourceWebhook
	}
	return sanitizeSegment(source)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name != "" {
		name = path.Base(name)
	}
	if name == "" || name == "." || name == "/" || name == ".." {
		return defaultFilename
	}
	return sanitizeSegment(name)
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
