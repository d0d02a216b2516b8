package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"edmanweb/internal/models"
)

// Index is the blob metadata store a Bucket writes through.
type Index interface {
	CreateBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error
	CountBlobsByKey(ctx context.Context, key string) (int, error)
}

// PutOptions carries the metadata stored alongside blob content.
type PutOptions struct {
	Filename    string
	Compression models.Compression
}

// Object is one blob as stored: raw bytes plus metadata.
type Object struct {
	Blob models.Blob
	Data []byte
}

// Bucket pairs content storage with a metadata index so callers can treat
// blobs as (id -> bytes, filename, compression tag).
//
// Each Put creates a new blob id even when the content already exists; the
// content object is removed once its last blob row is deleted.
type Bucket struct {
	content ContentStore
	index   Index
	logger  *slog.Logger

	// guards the row count / content delete pair against a concurrent Put
	// reusing the same content key
	mu sync.Mutex
}

// NewBucket creates a bucket over content and index.
func NewBucket(content ContentStore, index Index, logger *slog.Logger) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{content: content, index: index, logger: logger.With("component", "blob_bucket")}
}

// Put stores data, compressing it first when opts asks for it, and returns
// the new blob metadata.
func (b *Bucket) Put(ctx context.Context, data []byte, opts PutOptions) (*models.Blob, error) {
	if b == nil || b.content == nil || b.index == nil {
		return nil, fmt.Errorf("blob bucket is not configured")
	}

	payload := data
	if opts.Compression.IsCompressed() {
		compressed, err := Compress(data, opts.Compression.Algorithm())
		if err != nil {
			return nil, err
		}
		payload = compressed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	put, err := b.content.Put(ctx, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("write content: %w", err)
	}

	blob := &models.Blob{
		SHA256:         put.SHA256,
		SizeBytes:      put.SizeBytes,
		StorageBackend: b.content.Backend(),
		BlobKey:        put.BlobKey,
		Filename:       strings.TrimSpace(opts.Filename),
		Compression:    opts.Compression,
	}
	if err := b.index.CreateBlob(ctx, blob); err != nil {
		b.dropContentIfUnused(ctx, put.BlobKey)
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	return blob, nil
}

// Stat returns blob metadata without reading content.
func (b *Bucket) Stat(ctx context.Context, id string) (*models.Blob, error) {
	blob, err := b.index.GetBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return blob, nil
}

// Get returns the stored bytes of one blob, still compressed if they were
// stored compressed.
func (b *Bucket) Get(ctx context.Context, id string) (*Object, error) {
	blob, err := b.Stat(ctx, id)
	if err != nil {
		return nil, err
	}

	rc, err := b.content.Open(ctx, blob.BlobKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return &Object{Blob: *blob, Data: data}, nil
}

// Delete removes every id independently. Unknown ids are ignored; all
// other failures are joined into the returned error.
func (b *Bucket) Delete(ctx context.Context, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := b.deleteOne(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete blob %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bucket) deleteOne(ctx context.Context, id string) error {
	blob, err := b.index.GetBlob(ctx, id)
	if err != nil {
		return err
	}
	if blob == nil {
		return nil
	}
	if err := b.index.DeleteBlob(ctx, id); err != nil {
		return err
	}

	remaining, err := b.index.CountBlobsByKey(ctx, blob.BlobKey)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return b.content.Delete(ctx, blob.BlobKey)
}

func (b *Bucket) dropContentIfUnused(ctx context.Context, key string) {
	remaining, err := b.index.CountBlobsByKey(ctx, key)
	if err != nil {
		b.logger.Warn("count blob rows failed", "blob_key", key, "error", err)
		return
	}
	if remaining > 0 {
		return
	}
	if err := b.content.Delete(ctx, key); err != nil {
		b.logger.Warn("drop unused content failed", "blob_key", key, "error", err)
	}
}
