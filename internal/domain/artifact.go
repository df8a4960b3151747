package domain

import (
	"errors"
	"strings"
	"time"
)

// Artifact is a run output stored in the automation bucket.
type Artifact struct {
	ID          string
	RunID       string
	Kind        string
	StoragePath string
	SizeBytes   int64
	CreatedAt   time.Time
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(a.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(a.Kind) == "" {
		return errors.New("artifact kind is required")
	}
	if strings.TrimSpace(a.StoragePath) == "" {
		return errors.New("storage path is required")
	}
	if a.SizeBytes < 0 {
		return errors.New("size_bytes must be >= 0")
	}
	return nil
}

// ArtifactRef is an artifact with a signed download link, as shown in reports.
type ArtifactRef struct {
	Kind        string `json:"kind"`
	StoragePath string `json:"storage_path"`
	SignedURL   string `json:"signed_url"`
}
