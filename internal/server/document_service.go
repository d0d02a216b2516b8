package server

import (
	"context"
	"errors"
	"log/slog"

	"edmanweb/internal/graph"
	"edmanweb/internal/models"
)

// Traverser is the graph engine surface the document service needs.
type Traverser interface {
	Find(ctx context.Context, collection, id string, parentDepth, childDepth int, exclusion []string) (map[string]any, error)
	Tree(ctx context.Context, collection, id string, exclusion []string) (map[string]any, error)
}

var _ Traverser = (*graph.Engine)(nil)

// DocumentService picks the graph engine primitive matching a selection
// mode.
type DocumentService struct {
	engine Traverser
	writer graph.Writer
	logger *slog.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(engine Traverser, writer graph.Writer, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{engine: engine, writer: writer, logger: logger.With("component", "documents")}
}

// GetDocuments returns the document addressed by collection and rawID:
//   - SelectManual: up to parentDepth ancestors and childDepth levels below
//   - SelectWholeTree: the whole tree the document belongs to
//   - anything else: the document alone; depths are ignored
//
// exclusion names fields removed from every returned document.
func (s *DocumentService) GetDocuments(ctx context.Context, mode models.SelectMode, collection, rawID string, parentDepth, childDepth int, exclusion []string) (map[string]any, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	id, err := requireID(rawID)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	switch mode {
	case models.SelectManual:
		out, err = s.engine.Find(ctx, collection, id, parentDepth, childDepth, exclusion)
	case models.SelectWholeTree:
		out, err = s.engine.Tree(ctx, collection, id, exclusion)
	default:
		out, err = s.engine.Find(ctx, collection, id, 0, 0, exclusion)
	}
	if err != nil {
		return nil, classifyLookupError(err)
	}
	return out, nil
}

// ImportTree stores a nested structure in the whole-tree format and
// returns the created refs, root first.
func (s *DocumentService) ImportTree(ctx context.Context, tree map[string]any) ([]models.Ref, error) {
	if s.writer == nil {
		return nil, internalError(errNotConfigured("document import"))
	}
	refs, err := graph.Import(ctx, s.writer, tree)
	if errors.Is(err, graph.ErrInvalidTree) {
		return nil, badRequestCode(err, ErrCodeInvalidTree)
	}
	if err != nil {
		return nil, internalErrorCode(err, ErrCodeImportFailed)
	}
	s.logger.Info("document tree imported", "documents", len(refs), "root_collection", refs[0].Collection, "root_id", refs[0].ID)
	return refs, nil
}
