package store

import (
	"context"

	"edmanweb/internal/models"
)

// DocumentStore is the document persistence surface used by the services
// and the graph engine.
type DocumentStore interface {
	FindOne(ctx context.Context, collection, id string) (*models.Document, error)
	ReplaceOne(ctx context.Context, doc *models.Document) (int64, error)
	InsertDocuments(ctx context.Context, docs []*models.Document) error
	DeleteDocument(ctx context.Context, collection, id string) (int64, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// BlobIndex is the metadata half of the blob store.
//
// Content bytes live in a blobstore.ContentStore; this keeps one row per
// blob id so several ids may share one content object.
type BlobIndex interface {
	CreateBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error
	CountBlobsByKey(ctx context.Context, key string) (int, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
}

var (
	_ DocumentStore = (*Store)(nil)
	_ BlobIndex     = (*Store)(nil)
)
