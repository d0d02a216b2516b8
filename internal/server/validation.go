package server

import (
	"errors"
	"fmt"
	"net/http"

	"edmanweb/internal/blobstore"
	"edmanweb/internal/graph"
	"edmanweb/internal/models"
	"edmanweb/internal/preview"
)

func invalidIdentifier(raw string) error {
	return badRequestCode(fmt.Errorf("invalid identifier %q", raw), ErrCodeInvalidID)
}

func documentNotFound(collection, id string) error {
	return notFoundCode(fmt.Errorf("document not found: %s/%s", collection, id), ErrCodeDocumentNotFound)
}

func blobNotFound(id string) error {
	return notFoundCode(fmt.Errorf("blob not found: %s", id), ErrCodeBlobNotFound)
}

func emptyDeleteList() error {
	return badRequestCode(fmt.Errorf("ids are required"), ErrCodeEmptyDeleteList)
}

func blobStoreWriteFailed(err error) error {
	return internalErrorCode(fmt.Errorf("write blob: %w", err), ErrCodeBlobStoreWriteFailed)
}

func documentUpdateFailed(err error) error {
	return internalErrorCode(fmt.Errorf("update document: %w", err), ErrCodeDocumentUpdateFailed)
}

func referenceUpdateFailed(err error) error {
	return internalErrorCode(fmt.Errorf("remove attachment references: %w", err), ErrCodeReferenceUpdateFailed)
}

func blobDeleteFailed(err error) error {
	return internalErrorCode(fmt.Errorf("delete blobs: %w", err), ErrCodeBlobDeleteFailed)
}

func previewGenerationFailed(err error) error {
	return makeAPIError(http.StatusUnprocessableEntity, "unprocessable", ErrCodePreviewGenerationFailed, err)
}

// requireCollection validates a collection name from a path segment.
func requireCollection(name string) error {
	if err := models.ValidateCollection(name); err != nil {
		return badRequestCode(err, ErrCodeInvalidCollection)
	}
	return nil
}

// requireID resolves raw into a canonical identifier.
func requireID(raw string) (string, error) {
	id, err := models.ParseID(raw)
	if err != nil {
		return "", invalidIdentifier(raw)
	}
	return id, nil
}

// classifyLookupError maps leaf package sentinels onto service errors.
func classifyLookupError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blobstore.ErrNotFound):
		return notFoundCode(err, ErrCodeBlobNotFound)
	case errors.Is(err, graph.ErrNotFound):
		return notFoundCode(err, ErrCodeDocumentNotFound)
	case errors.Is(err, preview.ErrGeneration):
		return previewGenerationFailed(err)
	case errors.Is(err, graph.ErrInvalidTree):
		return badRequestCode(err, ErrCodeInvalidTree)
	default:
		return storeFailure(err)
	}
}

func errNotConfigured(what string) error {
	return fmt.Errorf("%s is not configured", what)
}
