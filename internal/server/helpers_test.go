package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/models"
	"edmanweb/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestBucket(t *testing.T, st *store.Store) *blobstore.Bucket {
	t.Helper()
	cas, err := blobstore.NewLocalCAS(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	return blobstore.NewBucket(cas, st, nil)
}

func newTestAttachmentService(t *testing.T) (*AttachmentService, *store.Store, *blobstore.Bucket) {
	t.Helper()
	st := newTestStore(t)
	bucket := newTestBucket(t, st)
	return NewAttachmentService(st, bucket, st, nil), st, bucket
}

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	return New("127.0.0.1:0", st, newTestBucket(t, st), opts, nil), st
}

func insertTestDoc(t *testing.T, st *store.Store, collection string, fields map[string]any) *models.Document {
	t.Helper()
	doc := &models.Document{Collection: collection, ID: models.NewID(), Fields: fields}
	if err := st.InsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("insert %s: %v", collection, err)
	}
	return doc
}

func reloadDoc(t *testing.T, st *store.Store, doc *models.Document) *models.Document {
	t.Helper()
	got, err := st.FindOne(context.Background(), doc.Collection, doc.ID)
	if err != nil {
		t.Fatalf("find %s: %v", doc.Ref(), err)
	}
	if got == nil {
		t.Fatalf("document %s disappeared", doc.Ref())
	}
	return got
}

func blobCount(t *testing.T, st *store.Store) int {
	t.Helper()
	info, err := st.StoreInfo(context.Background())
	if err != nil {
		t.Fatalf("store info: %v", err)
	}
	return info.TotalBlobs
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func expectErrorCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %d, got nil error", code)
	}
	if got := ErrorCode(err); got != code {
		t.Fatalf("expected error code %d, got %d (%v)", code, got, err)
	}
}
