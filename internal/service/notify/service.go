// Package notify sends run report notifications to requesters.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/mailer"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
	"github.com/animus-labs/spec-relay/internal/repo"
	"github.com/animus-labs/spec-relay/internal/report"
	store "github.com/animus-labs/spec-relay/internal/storage/objectstore"
)

// Sender delivers a rendered report.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type Result struct {
	ArtifactsCount int
	// Sent is false when no mail endpoint is configured and the report was
	// only logged.
	Sent bool
}

type Service struct {
	artifacts        repo.ArtifactRepository
	store            store.Store
	sender           Sender
	bucket           string
	linkTTL          time.Duration
	defaultRecipient string
	logger           *slog.Logger
}

// NewService builds the notifier. artifacts and objects may both be nil, in
// which case summaries are rendered with the artifacts they carry. sender may
// be nil, in which case reports are logged instead of sent.
func NewService(artifacts repo.ArtifactRepository, objects store.Store, sender Sender, bucket string, linkTTL time.Duration, defaultRecipient string, logger *slog.Logger) (*Service, error) {
	if (artifacts == nil) != (objects == nil) {
		return nil, errors.New("artifact repository and object store must be configured together")
	}
	if artifacts != nil && strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	if linkTTL <= 0 {
		linkTTL = 24 * time.Hour
	}
	defaultRecipient = strings.TrimSpace(defaultRecipient)
	if defaultRecipient == "" {
		defaultRecipient = mailer.DefaultRecipient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		artifacts:        artifacts,
		store:            objects,
		sender:           sender,
		bucket:           strings.TrimSpace(bucket),
		linkTTL:          linkTTL,
		defaultRecipient: defaultRecipient,
		logger:           logger,
	}, nil
}

func (s *Service) Notify(ctx context.Context, summary domain.ReportSummary) (Result, error) {
	if s == nil {
		return Result{}, errors.New("notify service not initialized")
	}
	if err := summary.Validate(); err != nil {
		return Result{}, apierr.BadInput(err.Error(), map[string]any{"field": "result"})
	}

	runID := strings.TrimSpace(summary.RunID)
	var linkTTL time.Duration
	if runID != "" && s.artifacts != nil {
		refs, err := s.signedArtifacts(ctx, runID)
		if err != nil {
			return Result{}, apierr.External(err, apierr.CodeRecordFailed, "Failed to load run artifacts")
		}
		summary.Artifacts = refs
		linkTTL = s.linkTTL
	}

	html, err := report.RenderWithLinkTTL(summary, linkTTL)
	if err != nil {
		return Result{}, apierr.BadInput(err.Error(), nil)
	}
	result := Result{ArtifactsCount: len(summary.Artifacts)}

	if s.sender == nil {
		s.logger.Info("report rendered, mail not configured", "run_id", runID, "result", summary.Result, "html", html)
		return result, nil
	}
	to := strings.TrimSpace(summary.RequesterEmail)
	if to == "" {
		to = s.defaultRecipient
	}
	msg := mailer.Message{To: to, Subject: report.Subject(summary), HTML: html}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("report email failed", "run_id", runID, "to", to, "error", err)
		return result, apierr.External(err, apierr.CodeDeliveryFailed, "Email sending failed")
	}
	s.logger.Info("report sent", "run_id", runID, "to", to, "artifacts", result.ArtifactsCount)
	result.Sent = true
	return result, nil
}

// signedArtifacts lists the run's artifacts with fresh links. Artifacts that
// cannot be signed are left out of the report.
func (s *Service) signedArtifacts(ctx context.Context, runID string) ([]domain.ArtifactRef, error) {
	artifacts, err := s.artifacts.ListArtifactsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	refs := make([]domain.ArtifactRef, 0, len(artifacts))
	for _, a := range artifacts {
		url, err := s.store.PresignGet(ctx, s.bucket, a.StoragePath, s.linkTTL)
		if err != nil || url == "" {
			s.logger.Warn("artifact link not issued", "run_id", runID, "storage_path", a.StoragePath, "error", err)
			continue
		}
		refs = append(refs, domain.ArtifactRef{Kind: a.Kind, StoragePath: a.StoragePath, SignedURL: url})
	}
	return refs, nil
}
