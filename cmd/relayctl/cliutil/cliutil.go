// Package cliutil holds helpers shared by relayctl commands.
package cliutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/platform/logging"
	"github.com/animus-labs/spec-relay/internal/platform/objectstore"
	"github.com/animus-labs/spec-relay/internal/platform/postgres"
	storageobjectstore "github.com/animus-labs/spec-relay/internal/storage/objectstore"
)

// ExitError carries a process exit code through cobra.
type ExitError struct {
	Code int
	Msg  string
}

func (e ExitError) Error() string { return e.Msg }
func (e ExitError) ExitCode() int { return e.Code }

// Logger writes JSON records to w at the configured level.
func Logger(w io.Writer) *slog.Logger {
	cfg, err := logging.ConfigFromEnv()
	if err != nil {
		cfg = logging.Config{Level: slog.LevelInfo, MaxSizeMB: 1}
	}
	cfg.File = ""
	logger, _, err := logging.New(cfg, w)
	if err != nil {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return logger
}

// OpenDB connects using the DATABASE_* environment.
func OpenDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	return postgres.Open(ctx, cfg)
}

// OpenStore connects to object storage using the RELAY_MINIO_* environment.
func OpenStore() (*storageobjectstore.MinioStore, objectstore.Config, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, objectstore.Config{}, fmt.Errorf("object store config: %w", err)
	}
	s, err := storageobjectstore.NewMinioStore(cfg)
	if err != nil {
		return nil, objectstore.Config{}, err
	}
	return s, cfg, nil
}

// ReadSummary loads a run summary file. The raw map keeps fields the typed
// summary does not know so the file can be rewritten without losing them.
func ReadSummary(path string) (domain.ReportSummary, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ReportSummary{}, nil, err
	}
	var summary domain.ReportSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.ReportSummary{}, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ReportSummary{}, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return summary, raw, nil
}

func WriteJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
