package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/spec-relay/internal/config"
	"github.com/animus-labs/spec-relay/internal/dispatch"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/mailer"
	"github.com/animus-labs/spec-relay/internal/platform/httpserver"
	"github.com/animus-labs/spec-relay/internal/platform/logging"
	"github.com/animus-labs/spec-relay/internal/platform/objectstore"
	"github.com/animus-labs/spec-relay/internal/platform/postgres"
	repopg "github.com/animus-labs/spec-relay/internal/repo/postgres"
	"github.com/animus-labs/spec-relay/internal/service/ingest"
	"github.com/animus-labs/spec-relay/internal/service/notify"
	storageobjectstore "github.com/animus-labs/spec-relay/internal/storage/objectstore"
)

const serviceName = "spec-relay"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid config", "error", err)
		os.Exit(2)
	}
	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging init failed: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("server failed", "error", err)
		stop()
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() { _ = db.Close() }()

	storeClient, err := objectstore.NewMinIOClient(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("object store client init: %w", err)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = objectstore.EnsureBuckets(startupCtx, storeClient, cfg.ObjectStore)
	cancel()
	if err != nil {
		return fmt.Errorf("object store unavailable: %w", err)
	}
	objects, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		return err
	}

	var dispatcher ingest.Dispatcher
	if cfg.Dispatch.Configured() {
		gh, err := dispatch.NewGitHubDispatcher(cfg.Dispatch, nil)
		if err != nil {
			return fmt.Errorf("dispatcher init: %w", err)
		}
		dispatcher = gh
	} else {
		logger.Warn("GITHUB_TOKEN not set, ingestion endpoints will answer 500")
	}
	ingestSvc, err := ingest.NewService(
		repopg.NewSpecStore(db),
		repopg.NewStatusEventStore(db),
		objects,
		dispatcher,
		cfg.ObjectStore.BucketSpecs,
		cfg.SpecLinkTTL,
		logger,
	)
	if err != nil {
		return fmt.Errorf("ingest service init: %w", err)
	}

	var sender notify.Sender
	if cfg.Mail.Configured() {
		m, err := mailer.NewHTTPMailer(cfg.Mail, nil)
		if err != nil {
			return fmt.Errorf("mailer init: %w", err)
		}
		sender = m
	} else {
		logger.Info("SMTP_ENDPOINT not set, reports will be logged")
	}
	notifySvc, err := notify.NewService(
		repopg.NewArtifactStore(db),
		objects,
		sender,
		cfg.ObjectStore.BucketAutomation,
		cfg.ArtifactLinkTTL,
		cfg.Mail.DefaultRecipient,
		logger,
	)
	if err != nil {
		return fmt.Errorf("notify service init: %w", err)
	}

	var mail mailbox
	if cfg.Gmail.Configured() {
		client, err := gmail.NewOAuthClient(ctx, cfg.Gmail, nil)
		if err != nil {
			return fmt.Errorf("gmail client init: %w", err)
		}
		mail = client
	} else {
		logger.Warn("gmail credentials missing, push notifications will only be acknowledged")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc(
		"GET /readyz",
		httpserver.ReadyzWithChecks(
			serviceName,
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, cfg.ObjectStore)
				},
			},
		),
	)

	api := newRelayAPI(logger, ingestSvc, notifySvc, mail, cfg.Gmail, cfg.TargetRepo, cfg.IngestLinkTTL)
	api.register(mux)

	srvCfg := httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, srvCfg, httpserver.Wrap(logger, serviceName, mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
