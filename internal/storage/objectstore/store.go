package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrAlreadyExists is returned by PutNew when the key is already taken.
	ErrAlreadyExists = errors.New("object already exists")
	// ErrNotFound is returned by Stat for a missing key.
	ErrNotFound = errors.New("object not found")
)

// Store abstracts S3-compatible object storage for specification documents
// and run artifacts. Objects are write-once.
type Store interface {
	// PutNew uploads body under key and fails with ErrAlreadyExists instead
	// of overwriting.
	PutNew(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	// PresignGet issues a read-only link valid for ttl.
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
