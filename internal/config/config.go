// Package config assembles the relay configuration from the environment.
// It is built once at startup and handed to constructors.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/spec-relay/internal/dispatch"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/mailer"
	"github.com/animus-labs/spec-relay/internal/platform/env"
	"github.com/animus-labs/spec-relay/internal/platform/logging"
	"github.com/animus-labs/spec-relay/internal/platform/objectstore"
	"github.com/animus-labs/spec-relay/internal/platform/postgres"
)

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	Logging     logging.Config
	Postgres    postgres.Config
	ObjectStore objectstore.Config
	Dispatch    dispatch.Config
	Gmail       gmail.Config
	Mail        mailer.Config

	// TargetRepo is the repository email-delivered specs are filed against.
	TargetRepo string

	SpecLinkTTL     time.Duration
	IngestLinkTTL   time.Duration
	ArtifactLinkTTL time.Duration
}

func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.Addr = env.String("RELAY_HTTP_ADDR", ":8080")
	if cfg.ShutdownTimeout, err = env.Duration("RELAY_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SpecLinkTTL, err = env.Duration("RELAY_SPEC_LINK_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.IngestLinkTTL, err = env.Duration("RELAY_INGEST_LINK_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ArtifactLinkTTL, err = env.Duration("RELAY_ARTIFACT_LINK_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Logging, err = logging.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("logging: %w", err)
	}
	if cfg.Postgres, err = postgres.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("postgres: %w", err)
	}
	if cfg.ObjectStore, err = objectstore.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("objectstore: %w", err)
	}
	if cfg.Dispatch, err = dispatch.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("dispatch: %w", err)
	}
	if cfg.Gmail, err = gmail.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("gmail: %w", err)
	}
	if cfg.Mail, err = mailer.ConfigFromEnv(); err != nil {
		return Config{}, fmt.Errorf("mail: %w", err)
	}
	cfg.TargetRepo = env.FirstOf(cfg.Dispatch.ControlRepo, "TARGET_REPO")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("RELAY_HTTP_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("RELAY_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.SpecLinkTTL <= 0 || c.IngestLinkTTL <= 0 || c.ArtifactLinkTTL <= 0 {
		return errors.New("link ttls must be positive")
	}
	// Presigned S3 links cannot outlive seven days.
	const maxLinkTTL = 7 * 24 * time.Hour
	if c.SpecLinkTTL > maxLinkTTL || c.IngestLinkTTL > maxLinkTTL || c.ArtifactLinkTTL > maxLinkTTL {
		return errors.New("link ttls must not exceed 168h")
	}
	if !dispatch.ValidRepo(c.TargetRepo) {
		return fmt.Errorf("TARGET_REPO must be owner/name, got %q", c.TargetRepo)
	}
	return nil
}
