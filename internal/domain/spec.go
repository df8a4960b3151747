package domain

import (
	"errors"
	"strings"
	"time"
)

const DefaultBranch = "main"

// Spec is the record of a received specification document. It is written
// once, after the document is stored, and never updated.
type Spec struct {
	ID          string
	Repo        string
	Branch      string
	StoragePath string
	CreatedBy   string
	CreatedAt   time.Time
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Repo) == "" {
		return errors.New("repo is required")
	}
	if strings.TrimSpace(s.Branch) == "" {
		return errors.New("branch is required")
	}
	if strings.TrimSpace(s.StoragePath) == "" {
		return errors.New("storage path is required")
	}
	if strings.TrimSpace(s.CreatedBy) == "" {
		return errors.New("created by is required")
	}
	return nil
}
