package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/metrics"
	"edmanweb/internal/models"
	"edmanweb/internal/store"
)

const (
	defaultBlobGCBatchSize = 500
	defaultBlobGCGrace     = 5 * time.Minute
)

// BlobBucket is the blob store surface the services depend on.
type BlobBucket interface {
	Put(ctx context.Context, data []byte, opts blobstore.PutOptions) (*models.Blob, error)
	Stat(ctx context.Context, id string) (*models.Blob, error)
	Get(ctx context.Context, id string) (*blobstore.Object, error)
	Delete(ctx context.Context, ids ...string) error
}

// UnreferencedLister finds blob rows no document points at.
type UnreferencedLister interface {
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
}

var _ BlobBucket = (*blobstore.Bucket)(nil)

// AttachmentService keeps document attachment lists and the blob store in
// step: blobs are written before they are referenced and dereferenced
// before they are deleted.
type AttachmentService struct {
	docs        store.DocumentStore
	blobs       BlobBucket
	index       UnreferencedLister
	logger      *slog.Logger
	gcBatchSize int
	gcGrace     time.Duration
}

// BlobContent is decoded blob data ready to be served.
type BlobContent struct {
	Data      []byte
	Filename  string
	MediaType string
	Blob      models.Blob
}

// DetachResult lists what a detach removed and what is still attached.
type DetachResult struct {
	Removed   []string
	Remaining []string
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int
	CandidateBytes int64
	DeletedCount   int
	FailedCount    int
	DryRun         bool
	BlobIDs        []string
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(docs store.DocumentStore, blobs BlobBucket, index UnreferencedLister, logger *slog.Logger) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentService{
		docs:        docs,
		blobs:       blobs,
		index:       index,
		logger:      logger.With("component", "attachments"),
		gcBatchSize: defaultBlobGCBatchSize,
		gcGrace:     defaultBlobGCGrace,
	}
}

// SetGCBatchSize overrides the number of blobs removed per GC round.
func (s *AttachmentService) SetGCBatchSize(n int) {
	if n <= 0 {
		n = defaultBlobGCBatchSize
	}
	s.gcBatchSize = n
}

// SetGCGrace overrides how old an unreferenced blob must be before GC
// considers it.
func (s *AttachmentService) SetGCGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.gcGrace = d
}

// Attach stores content as a new blob and appends its id to the document's
// attachment list. When the document update does not go through, the new
// blob is deleted again before the update error is returned.
func (s *AttachmentService) Attach(ctx context.Context, collection, rawID string, content []byte, filename string, compress bool) (blob *models.Blob, err error) {
	defer func() { metrics.ObserveAttach(err) }()

	doc, err := s.loadDocument(ctx, collection, rawID)
	if err != nil {
		return nil, err
	}

	compression := models.Uncompressed()
	if compress {
		compression = models.Compressed(models.CompressionGzip)
	}
	blob, err = s.blobs.Put(ctx, content, blobstore.PutOptions{Filename: filename, Compression: compression})
	if err != nil {
		return nil, blobStoreWriteFailed(err)
	}
	metrics.ObserveBlobWrite(blob.SizeBytes)

	committed := false
	defer func() {
		if !committed {
			s.compensate(ctx, doc.Ref(), blob.ID)
		}
	}()

	if err := s.addReference(ctx, doc, blob.ID); err != nil {
		return nil, err
	}
	committed = true
	return blob, nil
}

func (s *AttachmentService) addReference(ctx context.Context, doc *models.Document, blobID string) error {
	ids := append(append([]string(nil), doc.Attachments...), blobID)
	updated := doc.WithAttachments(ids)

	modified, err := s.docs.ReplaceOne(ctx, updated)
	if err != nil {
		return documentUpdateFailed(err)
	}
	if modified != 1 {
		return documentUpdateFailed(fmt.Errorf("document %s changed or was removed concurrently", doc.Ref()))
	}
	return nil
}

// compensate removes a blob whose reference could not be recorded. Its
// failure is logged, never returned.
func (s *AttachmentService) compensate(ctx context.Context, ref models.Ref, blobID string) {
	err := s.blobs.Delete(context.WithoutCancel(ctx), blobID)
	metrics.ObserveCompensation(err)
	if err != nil {
		s.logger.Error("orphan blob cleanup failed",
			"blob_id", blobID,
			"collection", ref.Collection,
			"document_id", ref.ID,
			"error", err,
		)
		return
	}
	s.logger.Warn("orphan blob removed after failed document update",
		"blob_id", blobID,
		"collection", ref.Collection,
		"document_id", ref.ID,
	)
}

// Detach removes blob ids from the document's attachment list and, once
// that update is stored, deletes those blobs. Ids the document does not
// reference are ignored.
func (s *AttachmentService) Detach(ctx context.Context, collection, rawID string, blobIDs []string) (result *DetachResult, err error) {
	defer func() { metrics.ObserveDetach(err) }()

	doc, err := s.loadDocument(ctx, collection, rawID)
	if err != nil {
		return nil, err
	}
	if len(blobIDs) == 0 {
		return nil, emptyDeleteList()
	}

	drop := make(map[string]struct{}, len(blobIDs))
	for _, raw := range blobIDs {
		id, err := requireID(raw)
		if err != nil {
			return nil, err
		}
		drop[id] = struct{}{}
	}

	result = &DetachResult{Removed: []string{}, Remaining: []string{}}
	for _, id := range doc.Attachments {
		if _, ok := drop[id]; ok {
			result.Removed = append(result.Removed, id)
			continue
		}
		result.Remaining = append(result.Remaining, id)
	}

	updated := doc.WithAttachments(result.Remaining)
	modified, err := s.docs.ReplaceOne(ctx, updated)
	if err != nil {
		return nil, referenceUpdateFailed(err)
	}
	if modified != 1 {
		return nil, referenceUpdateFailed(fmt.Errorf("document %s changed or was removed concurrently", doc.Ref()))
	}

	if len(result.Removed) == 0 {
		return result, nil
	}
	if err := s.blobs.Delete(ctx, result.Removed...); err != nil {
		metrics.ObserveBlobDeleteFailure()
		s.logger.Error("blob delete failed after references were removed",
			"collection", doc.Collection,
			"document_id", doc.ID,
			"blob_ids", result.Removed,
			"error", err,
		)
		return nil, blobDeleteFailed(err)
	}
	return result, nil
}

// Retrieve returns blob content, decompressed when it starts with the gzip
// magic number, with its stored filename and a media type guessed from
// the filename extension ("" when unknown).
func (s *AttachmentService) Retrieve(ctx context.Context, rawBlobID string) (*BlobContent, error) {
	blobID, err := requireID(rawBlobID)
	if err != nil {
		return nil, err
	}

	obj, err := s.blobs.Get(ctx, blobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, blobNotFound(blobID)
		}
		return nil, storeFailure(err)
	}

	data, err := blobstore.Decode(obj.Data)
	if err != nil {
		return nil, internalError(fmt.Errorf("decode blob %s: %w", blobID, err))
	}

	return &BlobContent{
		Data:      data,
		Filename:  obj.Blob.Filename,
		MediaType: guessMediaType(obj.Blob.Filename),
		Blob:      obj.Blob,
	}, nil
}

// ListFiles returns metadata of every blob the document references, in
// attachment order. References to missing blobs are skipped.
func (s *AttachmentService) ListFiles(ctx context.Context, collection, rawID string) ([]models.Blob, error) {
	doc, err := s.loadDocument(ctx, collection, rawID)
	if err != nil {
		return nil, err
	}

	files := make([]models.Blob, 0, len(doc.Attachments))
	for _, id := range doc.Attachments {
		blob, err := s.blobs.Stat(ctx, id)
		if errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn("document references missing blob",
				"collection", doc.Collection,
				"document_id", doc.ID,
				"blob_id", id,
			)
			continue
		}
		if err != nil {
			return nil, storeFailure(err)
		}
		files = append(files, *blob)
	}
	return files, nil
}

// GCBlobs finds blobs no document references. With apply set they are
// deleted in batches; otherwise only counted. Blobs younger than the grace
// period are left alone since an upload may still be about to reference them.
func (s *AttachmentService) GCBlobs(ctx context.Context, batchSize int, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if s.index == nil {
		return result, internalError(fmt.Errorf("blob index is not configured"))
	}
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
	}
	cutoff := time.Now().UTC().Add(-s.gcGrace)

	if !apply {
		blobs, err := s.index.ListUnreferencedBlobs(ctx, 0)
		if err != nil {
			return result, storeFailure(err)
		}
		for _, blob := range blobs {
			if blob.CreatedAt.After(cutoff) {
				continue
			}
			result.CandidateCount++
			result.CandidateBytes += blob.SizeBytes
			result.BlobIDs = append(result.BlobIDs, blob.ID)
		}
		return result, nil
	}

	skipped := map[string]struct{}{}
	for {
		blobs, err := s.index.ListUnreferencedBlobs(ctx, batchSize+len(skipped))
		if err != nil {
			return result, storeFailure(err)
		}

		progressed := false
		for _, blob := range blobs {
			if _, ok := skipped[blob.ID]; ok {
				continue
			}
			if blob.CreatedAt.After(cutoff) {
				skipped[blob.ID] = struct{}{}
				continue
			}
			progressed = true
			result.CandidateCount++
			result.CandidateBytes += blob.SizeBytes
			if err := s.blobs.Delete(ctx, blob.ID); err != nil {
				skipped[blob.ID] = struct{}{}
				result.FailedCount++
				s.logger.Warn("blob gc delete failed", "blob_id", blob.ID, "error", err)
				continue
			}
			result.DeletedCount++
			result.BlobIDs = append(result.BlobIDs, blob.ID)
		}
		if !progressed {
			return result, nil
		}
	}
}

func (s *AttachmentService) loadDocument(ctx context.Context, collection, rawID string) (*models.Document, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	id, err := requireID(rawID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.FindOne(ctx, collection, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	if doc == nil {
		return nil, documentNotFound(collection, id)
	}
	return doc, nil
}

func guessMediaType(filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
