package server

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/models"
	"edmanweb/internal/store"
)

// flakyDocs lets a test break the document update that follows a blob write.
type flakyDocs struct {
	*store.Store
	replace func(ctx context.Context, doc *models.Document) (int64, error)
}

func (f *flakyDocs) ReplaceOne(ctx context.Context, doc *models.Document) (int64, error) {
	if f.replace != nil {
		return f.replace(ctx, doc)
	}
	return f.Store.ReplaceOne(ctx, doc)
}

// flakyBucket fails Put or Delete on demand.
type flakyBucket struct {
	*blobstore.Bucket
	putErr    error
	deleteErr error
}

func (f *flakyBucket) Put(ctx context.Context, data []byte, opts blobstore.PutOptions) (*models.Blob, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.Bucket.Put(ctx, data, opts)
}

func (f *flakyBucket) Delete(ctx context.Context, ids ...string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Bucket.Delete(ctx, ids...)
}

func TestAttachStoresBlobAndReference(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", map[string]any{"name": "s1"})

	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("hello"), "notes.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	got := reloadDoc(t, st, doc)
	if !slices.Equal(got.Attachments, []string{blob.ID}) {
		t.Fatalf("expected attachments [%s], got %v", blob.ID, got.Attachments)
	}

	content, err := svc.Retrieve(ctx, blob.ID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if string(content.Data) != "hello" {
		t.Fatalf("expected hello, got %q", content.Data)
	}
	if content.Filename != "notes.txt" {
		t.Fatalf("expected filename notes.txt, got %q", content.Filename)
	}
	if content.MediaType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected media type %q", content.MediaType)
	}
}

func TestAttachAppendsInOrder(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	first, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("a"), "a.txt", false)
	if err != nil {
		t.Fatalf("attach first: %v", err)
	}
	second, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("a"), "b.txt", false)
	if err != nil {
		t.Fatalf("attach second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected a fresh blob id per upload")
	}

	got := reloadDoc(t, st, doc)
	if !slices.Equal(got.Attachments, []string{first.ID, second.ID}) {
		t.Fatalf("unexpected attachment order: %v", got.Attachments)
	}
}

func TestAttachCompressedRoundTrip(t *testing.T) {
	svc, st, bucket := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	raw := bytes.Repeat([]byte("frame "), 512)
	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, raw, "frames.log", true)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if blob.Compression.Algorithm() != models.CompressionGzip {
		t.Fatalf("expected gzip tag, got %v", blob.Compression)
	}

	stored, err := bucket.Get(ctx, blob.ID)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if !blobstore.HasGzipMagic(stored.Data) {
		t.Fatal("expected stored bytes to carry the gzip magic number")
	}

	content, err := svc.Retrieve(ctx, blob.ID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(content.Data, raw) {
		t.Fatal("decompressed content does not match upload")
	}
}

func TestAttachUnknownDocument(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)

	_, err := svc.Attach(context.Background(), "sample", models.NewID(), []byte("x"), "x.txt", false)
	expectErrorCode(t, err, ErrCodeDocumentNotFound)
	if n := blobCount(t, st); n != 0 {
		t.Fatalf("expected no blob written, got %d", n)
	}
}

func TestAttachRejectsMalformedInput(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t)
	ctx := context.Background()

	_, err := svc.Attach(ctx, "sample", "not-an-id", []byte("x"), "x.txt", false)
	expectErrorCode(t, err, ErrCodeInvalidID)

	_, err = svc.Attach(ctx, "bad collection", models.NewID(), []byte("x"), "x.txt", false)
	expectErrorCode(t, err, ErrCodeInvalidCollection)
}

func TestAttachCompensatesWhenDocumentUpdateFails(t *testing.T) {
	tests := []struct {
		name    string
		replace func(ctx context.Context, doc *models.Document) (int64, error)
	}{
		{
			name: "update error",
			replace: func(context.Context, *models.Document) (int64, error) {
				return 0, errors.New("disk full")
			},
		},
		{
			name: "nothing modified",
			replace: func(context.Context, *models.Document) (int64, error) {
				return 0, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			bucket := newTestBucket(t, st)
			docs := &flakyDocs{Store: st, replace: tt.replace}
			svc := NewAttachmentService(docs, bucket, st, nil)
			doc := insertTestDoc(t, st, "sample", nil)

			_, err := svc.Attach(context.Background(), doc.Collection, doc.ID, []byte("orphan"), "o.txt", false)
			expectErrorCode(t, err, ErrCodeDocumentUpdateFailed)

			if n := blobCount(t, st); n != 0 {
				t.Fatalf("expected compensating delete to leave no blobs, got %d", n)
			}
			if got := reloadDoc(t, st, doc); len(got.Attachments) != 0 {
				t.Fatalf("expected document untouched, got %v", got.Attachments)
			}
		})
	}
}

func TestAttachCompensatesWhenDocumentRemovedConcurrently(t *testing.T) {
	st := newTestStore(t)
	bucket := newTestBucket(t, st)
	docs := &flakyDocs{Store: st}
	docs.replace = func(ctx context.Context, doc *models.Document) (int64, error) {
		if _, err := st.DeleteDocument(ctx, doc.Collection, doc.ID); err != nil {
			return 0, err
		}
		return st.ReplaceOne(ctx, doc)
	}
	svc := NewAttachmentService(docs, bucket, st, nil)
	doc := insertTestDoc(t, st, "sample", nil)

	_, err := svc.Attach(context.Background(), doc.Collection, doc.ID, []byte("late"), "late.txt", false)
	expectErrorCode(t, err, ErrCodeDocumentUpdateFailed)
	if n := blobCount(t, st); n != 0 {
		t.Fatalf("expected no blobs after compensation, got %d", n)
	}
}

func TestAttachCompensatesOnPanic(t *testing.T) {
	st := newTestStore(t)
	bucket := newTestBucket(t, st)
	docs := &flakyDocs{Store: st, replace: func(context.Context, *models.Document) (int64, error) {
		panic("boom")
	}}
	svc := NewAttachmentService(docs, bucket, st, nil)
	doc := insertTestDoc(t, st, "sample", nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = svc.Attach(context.Background(), doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	}()

	if n := blobCount(t, st); n != 0 {
		t.Fatalf("expected compensation to run during panic, got %d blobs", n)
	}
}

func TestAttachCompensatesAfterCancel(t *testing.T) {
	st := newTestStore(t)
	bucket := newTestBucket(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	docs := &flakyDocs{Store: st, replace: func(context.Context, *models.Document) (int64, error) {
		cancel()
		return 0, context.Canceled
	}}
	svc := NewAttachmentService(docs, bucket, st, nil)
	doc := insertTestDoc(t, st, "sample", nil)

	_, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	expectErrorCode(t, err, ErrCodeDocumentUpdateFailed)
	if n := blobCount(t, st); n != 0 {
		t.Fatalf("expected compensation despite cancelled request, got %d blobs", n)
	}
}

func TestAttachBlobWriteFailureLeavesDocument(t *testing.T) {
	st := newTestStore(t)
	bucket := &flakyBucket{Bucket: newTestBucket(t, st), putErr: errors.New("bucket offline")}
	svc := NewAttachmentService(st, bucket, st, nil)
	doc := insertTestDoc(t, st, "sample", nil)

	_, err := svc.Attach(context.Background(), doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	expectErrorCode(t, err, ErrCodeBlobStoreWriteFailed)
	if got := reloadDoc(t, st, doc); got.Revision != doc.Revision || len(got.Attachments) != 0 {
		t.Fatalf("expected document unchanged, got revision %d attachments %v", got.Revision, got.Attachments)
	}
}

func TestDetachSubset(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	var ids []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte(name), name, false)
		if err != nil {
			t.Fatalf("attach %s: %v", name, err)
		}
		ids = append(ids, blob.ID)
	}

	result, err := svc.Detach(ctx, doc.Collection, doc.ID, []string{ids[1]})
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if !slices.Equal(result.Removed, []string{ids[1]}) {
		t.Fatalf("unexpected removed %v", result.Removed)
	}
	if !slices.Equal(result.Remaining, []string{ids[0], ids[2]}) {
		t.Fatalf("unexpected remaining %v", result.Remaining)
	}

	got := reloadDoc(t, st, doc)
	if !slices.Equal(got.Attachments, []string{ids[0], ids[2]}) {
		t.Fatalf("unexpected stored attachments %v", got.Attachments)
	}
	if _, err := svc.Retrieve(ctx, ids[1]); ErrorCode(err) != ErrCodeBlobNotFound {
		t.Fatalf("expected detached blob to be gone, got %v", err)
	}
	if n := blobCount(t, st); n != 2 {
		t.Fatalf("expected 2 blobs left, got %d", n)
	}
}

func TestDetachAllDropsField(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", map[string]any{"name": "s"})

	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := svc.Detach(ctx, doc.Collection, doc.ID, []string{blob.ID}); err != nil {
		t.Fatalf("detach: %v", err)
	}

	got := reloadDoc(t, st, doc)
	if len(got.Attachments) != 0 {
		t.Fatalf("expected no attachments, got %v", got.Attachments)
	}
	body, err := got.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if bytes.Contains(body, []byte(models.FieldAttachment)) {
		t.Fatalf("expected attachment field removed, got %s", body)
	}
}

func TestDetachEmptyListMutatesNothing(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)
	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	before := reloadDoc(t, st, doc)

	_, err = svc.Detach(ctx, doc.Collection, doc.ID, nil)
	expectErrorCode(t, err, ErrCodeEmptyDeleteList)

	after := reloadDoc(t, st, doc)
	if after.Revision != before.Revision || !slices.Equal(after.Attachments, []string{blob.ID}) {
		t.Fatalf("expected no mutation, got revision %d attachments %v", after.Revision, after.Attachments)
	}
}

func TestDetachMissingDocumentBeforeEmptyList(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t)
	_, err := svc.Detach(context.Background(), "sample", models.NewID(), nil)
	expectErrorCode(t, err, ErrCodeDocumentNotFound)
}

func TestDetachIgnoresUnreferencedIDs(t *testing.T) {
	svc, st, bucket := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)
	other := insertTestDoc(t, st, "sample", nil)

	mine, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("mine"), "mine.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	theirs, err := svc.Attach(ctx, other.Collection, other.ID, []byte("theirs"), "theirs.txt", false)
	if err != nil {
		t.Fatalf("attach other: %v", err)
	}

	result, err := svc.Detach(ctx, doc.Collection, doc.ID, []string{theirs.ID, models.NewID()})
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if len(result.Removed) != 0 || !slices.Equal(result.Remaining, []string{mine.ID}) {
		t.Fatalf("unexpected result %#v", result)
	}
	if _, err := bucket.Stat(ctx, theirs.ID); err != nil {
		t.Fatalf("blob owned by another document must survive: %v", err)
	}
}

func TestDetachRejectsMalformedIDs(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	doc := insertTestDoc(t, st, "sample", nil)

	_, err := svc.Detach(context.Background(), doc.Collection, doc.ID, []string{"nope"})
	expectErrorCode(t, err, ErrCodeInvalidID)
}

func TestDetachReferenceUpdateFailureKeepsBlobs(t *testing.T) {
	st := newTestStore(t)
	bucket := newTestBucket(t, st)
	docs := &flakyDocs{Store: st}
	svc := NewAttachmentService(docs, bucket, st, nil)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	docs.replace = func(context.Context, *models.Document) (int64, error) {
		return 0, errors.New("locked")
	}
	_, err = svc.Detach(ctx, doc.Collection, doc.ID, []string{blob.ID})
	expectErrorCode(t, err, ErrCodeReferenceUpdateFailed)

	if _, err := bucket.Stat(ctx, blob.ID); err != nil {
		t.Fatalf("expected blob kept after failed reference update: %v", err)
	}
}

func TestDetachBlobDeleteFailureReported(t *testing.T) {
	st := newTestStore(t)
	bucket := &flakyBucket{Bucket: newTestBucket(t, st)}
	svc := NewAttachmentService(st, bucket, st, nil)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "x.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	bucket.deleteErr = errors.New("bucket offline")
	_, err = svc.Detach(ctx, doc.Collection, doc.ID, []string{blob.ID})
	expectErrorCode(t, err, ErrCodeBlobDeleteFailed)

	// References are already gone; the blob is left for GC.
	if got := reloadDoc(t, st, doc); len(got.Attachments) != 0 {
		t.Fatalf("expected references removed, got %v", got.Attachments)
	}
}

func TestRetrieveGzipMagicSniff(t *testing.T) {
	svc, _, bucket := newTestAttachmentService(t)
	ctx := context.Background()

	compressed, err := blobstore.Compress([]byte("inner"), models.CompressionGzip)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	// Stored untagged: decoding follows the bytes, not the tag.
	blob, err := bucket.Put(ctx, compressed, blobstore.PutOptions{Filename: "inner.bin"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	content, err := svc.Retrieve(ctx, blob.ID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if string(content.Data) != "inner" {
		t.Fatalf("expected decompressed content, got %q", content.Data)
	}

	plain, err := bucket.Put(ctx, []byte{0x1f, 0x00, 0x8b}, blobstore.PutOptions{Filename: "plain.zzq"})
	if err != nil {
		t.Fatalf("put plain: %v", err)
	}
	content, err = svc.Retrieve(ctx, plain.ID)
	if err != nil {
		t.Fatalf("retrieve plain: %v", err)
	}
	if !bytes.Equal(content.Data, []byte{0x1f, 0x00, 0x8b}) {
		t.Fatalf("expected plain bytes unchanged, got %v", content.Data)
	}
	if content.MediaType != "" {
		t.Fatalf("expected unknown media type to be empty, got %q", content.MediaType)
	}
}

func TestRetrieveErrors(t *testing.T) {
	svc, _, _ := newTestAttachmentService(t)
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, models.NewID())
	expectErrorCode(t, err, ErrCodeBlobNotFound)

	_, err = svc.Retrieve(ctx, "zzz")
	expectErrorCode(t, err, ErrCodeInvalidID)
}

func TestListFilesSkipsMissingBlobs(t *testing.T) {
	svc, st, _ := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	blob, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("x"), "photo.PNG", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	current := reloadDoc(t, st, doc)
	dangling := current.WithAttachments(append(current.Attachments, models.NewID()))
	if _, err := st.ReplaceOne(ctx, dangling); err != nil {
		t.Fatalf("replace: %v", err)
	}

	files, err := svc.ListFiles(ctx, doc.Collection, doc.ID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 1 || files[0].ID != blob.ID || files[0].Filename != "photo.PNG" {
		t.Fatalf("unexpected files %#v", files)
	}
}

func TestGCBlobs(t *testing.T) {
	svc, st, bucket := newTestAttachmentService(t)
	ctx := context.Background()
	doc := insertTestDoc(t, st, "sample", nil)

	kept, err := svc.Attach(ctx, doc.Collection, doc.ID, []byte("kept"), "kept.txt", false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	orphan, err := bucket.Put(ctx, []byte("orphan"), blobstore.PutOptions{Filename: "orphan.txt"})
	if err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	// Fresh orphans sit inside the default grace period.
	result, err := svc.GCBlobs(ctx, 0, false)
	if err != nil {
		t.Fatalf("gc dry run: %v", err)
	}
	if result.CandidateCount != 0 {
		t.Fatalf("expected grace period to hide fresh orphan, got %d", result.CandidateCount)
	}

	svc.SetGCGrace(0)
	result, err = svc.GCBlobs(ctx, 0, false)
	if err != nil {
		t.Fatalf("gc dry run: %v", err)
	}
	if !result.DryRun || result.CandidateCount != 1 || result.DeletedCount != 0 {
		t.Fatalf("unexpected dry run result %#v", result)
	}
	if !slices.Equal(result.BlobIDs, []string{orphan.ID}) {
		t.Fatalf("expected orphan candidate, got %v", result.BlobIDs)
	}

	result, err = svc.GCBlobs(ctx, 1, true)
	if err != nil {
		t.Fatalf("gc apply: %v", err)
	}
	if result.DryRun || result.DeletedCount != 1 || result.FailedCount != 0 {
		t.Fatalf("unexpected apply result %#v", result)
	}
	if _, err := bucket.Stat(ctx, orphan.ID); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected orphan deleted, got %v", err)
	}
	if _, err := bucket.Stat(ctx, kept.ID); err != nil {
		t.Fatalf("expected referenced blob kept: %v", err)
	}
}

func TestGCBlobsStopsOnRepeatedFailures(t *testing.T) {
	st := newTestStore(t)
	bucket := &flakyBucket{Bucket: newTestBucket(t, st)}
	svc := NewAttachmentService(st, bucket, st, nil)
	svc.SetGCGrace(0)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := bucket.Put(ctx, []byte(name), blobstore.PutOptions{Filename: name}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	bucket.deleteErr = errors.New("bucket offline")

	result, err := svc.GCBlobs(ctx, 2, true)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if result.FailedCount != 3 || result.DeletedCount != 0 {
		t.Fatalf("expected every delete to fail once, got %#v", result)
	}
}
