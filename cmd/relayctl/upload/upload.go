package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
	repopg "github.com/animus-labs/spec-relay/internal/repo/postgres"
	"github.com/animus-labs/spec-relay/internal/storage/objectstore"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	KindJUnit      = "junit"
	KindCoverage   = "coverage"
	KindLighthouse = "lighthouse"
	KindLogs       = "logs"

	contentType = "application/octet-stream"
)

// deps are the backends an upload writes to.
type deps struct {
	store     objectstore.Store
	artifacts repo.ArtifactRepository
	events    repo.StatusEventRepository
	bucket    string
	close     func() error
}

// openDeps connects storage and the database. Replaced in tests.
var openDeps = func(ctx context.Context) (deps, error) {
	store, cfg, err := cliutil.OpenStore()
	if err != nil {
		return deps{}, err
	}
	db, err := cliutil.OpenDB(ctx)
	if err != nil {
		return deps{}, err
	}
	return deps{
		store:     store,
		artifacts: repopg.NewArtifactStore(db),
		events:    repopg.NewStatusEventStore(db),
		bucket:    cfg.BucketAutomation,
		close:     db.Close,
	}, nil
}

// File is a local file selected for upload.
type File struct {
	Path string
	Rel  string
	Kind string
	Size int64
}

// Classify returns the artifact kind for a path relative to the scan root,
// or "" when the file is not an artifact. Earlier kinds win.
func Classify(rel string) string {
	rel = filepath.ToSlash(rel)
	base := strings.ToLower(path.Base(rel))
	segments := strings.Split(strings.ToLower(path.Dir(rel)), "/")
	hasSegment := func(name string) bool {
		for _, s := range segments {
			if s == name {
				return true
			}
		}
		return false
	}
	ext := path.Ext(base)

	switch {
	case ext == ".xml" && (strings.HasPrefix(base, "junit") || base == "test-results.xml" || base == "pytest.xml"):
		return KindJUnit
	case strings.HasPrefix(base, "coverage") && (ext == ".xml" || ext == ".json"), hasSegment("htmlcov"):
		return KindCoverage
	case ext == ".json" && (strings.HasPrefix(base, "lighthouse") || strings.HasPrefix(base, "lh-")):
		return KindLighthouse
	case ext == ".log", hasSegment("logs"):
		return KindLogs
	}
	return ""
}

// Collect walks dir and returns the artifact files sorted by relative path.
func Collect(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		kind := Classify(rel)
		if kind == "" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{Path: p, Rel: filepath.ToSlash(rel), Kind: kind, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// Key is the storage path of f for runID.
func Key(runID string, f File) string {
	return fmt.Sprintf("reports/%s/%s/%s", runID, f.Kind, f.Rel)
}

type Summary struct {
	Uploaded []domain.Artifact
	Skipped  []string
	Failed   []string
}

// errExists marks a file whose object is already stored for the run.
var errExists = errors.New("already uploaded")

// Upload stores files concurrently and records one artifact row per file.
// A failed file does not stop the others. Files already stored under the
// run are skipped so an interrupted upload can be rerun.
func Upload(ctx context.Context, d deps, runID string, files []File, concurrency int, logger *slog.Logger) Summary {
	if concurrency <= 0 {
		concurrency = 4
	}
	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range files {
		g.Go(func() error {
			artifact, err := uploadOne(gctx, d, runID, f)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, errExists) {
				logger.Info("artifact already uploaded", "path", f.Rel, "kind", f.Kind)
				sum.Skipped = append(sum.Skipped, f.Rel)
				return nil
			}
			if err != nil {
				logger.Warn("artifact upload failed", "path", f.Rel, "kind", f.Kind, "error", err)
				sum.Failed = append(sum.Failed, f.Rel)
				return nil
			}
			logger.Info("artifact uploaded", "path", artifact.StoragePath, "kind", f.Kind, "size_bytes", f.Size)
			sum.Uploaded = append(sum.Uploaded, artifact)
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(sum.Uploaded, func(i, j int) bool { return sum.Uploaded[i].StoragePath < sum.Uploaded[j].StoragePath })
	sort.Strings(sum.Skipped)
	sort.Strings(sum.Failed)
	return sum
}

func uploadOne(ctx context.Context, d deps, runID string, f File) (domain.Artifact, error) {
	key := Key(runID, f)
	if _, err := d.store.Stat(ctx, d.bucket, key); err == nil {
		return domain.Artifact{}, errExists
	} else if !errors.Is(err, objectstore.ErrNotFound) {
		return domain.Artifact{}, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer fh.Close()

	if err := d.store.PutNew(ctx, d.bucket, key, fh, f.Size, contentType); err != nil {
		return domain.Artifact{}, fmt.Errorf("store %s: %w", key, err)
	}
	artifact, err := d.artifacts.CreateArtifact(ctx, domain.Artifact{
		RunID:       runID,
		Kind:        f.Kind,
		StoragePath: key,
		SizeBytes:   f.Size,
	})
	if err != nil {
		// An object without a row would be skipped on the next run and never
		// reach a report.
		if derr := d.store.Delete(ctx, d.bucket, key); derr != nil {
			return domain.Artifact{}, fmt.Errorf("record %s: %w (rollback: %v)", key, err, derr)
		}
		return domain.Artifact{}, fmt.Errorf("record %s: %w", key, err)
	}
	return artifact, nil
}

// NewCmd creates `relayctl upload-artifacts`.
func NewCmd() *cobra.Command {
	var runID, dir string
	var concurrency int
	cmd := &cobra.Command{
		Use:           "upload-artifacts",
		Short:         "Upload test reports, coverage and logs of a run to the automation bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID = strings.TrimSpace(runID)
			if runID == "" {
				return fmt.Errorf("missing required flag: --run-id")
			}
			return run(cmd, runID, dir, concurrency)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id the artifacts belong to")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to scan for artifacts")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum parallel uploads")
	return cmd
}

func run(cmd *cobra.Command, runID, dir string, concurrency int) error {
	logger := cliutil.Logger(cmd.ErrOrStderr())
	files, err := Collect(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no artifacts found")
		return nil
	}

	ctx := cmd.Context()
	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if d.close != nil {
			_ = d.close()
		}
	}()

	sum := Upload(ctx, d, runID, files, concurrency, logger)
	if _, err := d.events.LogEvent(ctx, domain.StatusEvent{
		RunID:   runID,
		Phase:   domain.PhaseArtifactsUploaded,
		Message: fmt.Sprintf("%d artifacts uploaded", len(sum.Uploaded)),
		Metadata: domain.Metadata{
			"uploaded": len(sum.Uploaded),
			"skipped":  len(sum.Skipped),
			"failed":   len(sum.Failed),
		},
	}); err != nil {
		logger.Warn("status event not recorded", "run_id", runID, "error", err)
	}

	out := cmd.OutOrStdout()
	for _, a := range sum.Uploaded {
		fmt.Fprintf(out, "%s\t%s\n", a.Kind, a.StoragePath)
	}
	for _, rel := range sum.Skipped {
		fmt.Fprintf(out, "skipped\t%s\n", rel)
	}
	if len(sum.Failed) > 0 {
		return cliutil.ExitError{Code: 1, Msg: fmt.Sprintf("%d of %d artifacts failed to upload", len(sum.Failed), len(files))}
	}
	return nil
}
