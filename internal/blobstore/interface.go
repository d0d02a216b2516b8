package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob id or content key does not exist.
var ErrNotFound = errors.New("blob not found")

// PutResult describes one persisted content object.
type PutResult struct {
	SHA256    string
	SizeBytes int64
	BlobKey   string
}

// ContentStore is the byte-level storage underneath a Bucket. Keys are
// derived from the content digest, so identical payloads share one object.
type ContentStore interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}

var (
	_ ContentStore = (*LocalCAS)(nil)
	_ ContentStore = (*S3Store)(nil)
)
