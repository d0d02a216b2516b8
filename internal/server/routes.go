package server

import (
	"net/http"

	"edmanweb/internal/metrics"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.Handle("GET /metrics", metrics.Handler())

	// Documents.
	mux.HandleFunc("GET /v1/collections/{collection}/documents/{id}", s.handleGetDocuments)
	mux.HandleFunc("POST /v1/documents/import", s.handleImportDocuments)

	// Attachments.
	mux.HandleFunc("POST /v1/collections/{collection}/documents/{id}/attachments", s.handleUploadAttachment)
	mux.HandleFunc("DELETE /v1/collections/{collection}/documents/{id}/attachments", s.handleDeleteAttachments)
	mux.HandleFunc("GET /v1/collections/{collection}/documents/{id}/attachments", s.handleListAttachments)
	mux.HandleFunc("GET /v1/collections/{collection}/documents/{id}/previews", s.handlePreviews)

	// Blobs.
	mux.HandleFunc("GET /v1/blobs/{blob_id}", s.handleDownloadBlob)

	// Admin.
	mux.HandleFunc("POST /v1/admin/gc", s.handleBlobGC)

	return mux
}
