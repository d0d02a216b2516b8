package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned after a file is attached to a document.
type UploadResponse struct {
	BlobID      string `json:"blob_id"`
	Collection  string `json:"collection"`
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Compression string `json:"compression"`
	SizeBytes   int64  `json:"size_bytes"`
}

// DeleteAttachmentsRequest names the blob ids to detach from a document.
type DeleteAttachmentsRequest struct {
	IDs []string `json:"ids"`
}

// DeleteAttachmentsResponse echoes the ids whose references were removed.
type DeleteAttachmentsResponse struct {
	Removed   []string `json:"removed"`
	Remaining []string `json:"remaining"`
}

// FileResponse is one attachment of a document.
type FileResponse struct {
	BlobID      string    `json:"blob_id"`
	Filename    string    `json:"filename"`
	MediaType   string    `json:"media_type,omitempty"`
	Compression string    `json:"compression"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// PreviewItem is one rendered image, base64 encoded.
type PreviewItem struct {
	Data string `json:"data"`
	Ext  string `json:"ext"`
}

// PreviewResponse maps blob id to rendered image.
type PreviewResponse struct {
	Mode   string                 `json:"mode"`
	Width  int                    `json:"width,omitempty"`
	Height int                    `json:"height,omitempty"`
	Items  map[string]PreviewItem `json:"items"`
}

// ImportResponse lists the documents created by a tree import.
type ImportResponse struct {
	Created int         `json:"created"`
	Refs    []RefResult `json:"refs"`
}

// RefResult addresses one document.
type RefResult struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// BlobGCResponse reports an unreferenced blob sweep.
type BlobGCResponse struct {
	CandidateCount int      `json:"candidate_count"`
	CandidateBytes int64    `json:"candidate_bytes"`
	DeletedCount   int      `json:"deleted_count"`
	FailedCount    int      `json:"failed_count"`
	DryRun         bool     `json:"dry_run"`
	BlobIDs        []string `json:"blob_ids,omitempty"`
}

// InfoResponse describes the running server and its store.
type InfoResponse struct {
	SchemaVersion   int              `json:"schema_version"`
	BlobBackend     string           `json:"blob_backend"`
	DocumentCounts  map[string]int   `json:"document_counts"`
	TotalDocuments  int              `json:"total_documents"`
	TotalBlobs      int              `json:"total_blobs"`
	TotalBlobBytes  int64            `json:"total_blob_bytes"`
	CompressedBlobs int              `json:"compressed_blobs"`
	Previews        PreviewInfo      `json:"previews"`
	Limits          map[string]int64 `json:"limits,omitempty"`
}

// PreviewInfo is the preview configuration in effect.
type PreviewInfo struct {
	AllowedExtensions []string `json:"allowed_extensions"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
}
