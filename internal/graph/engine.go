// Package graph assembles parent/child linked documents into nested
// structures and imports such structures back into the document store.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"edmanweb/internal/models"
)

// ErrNotFound is returned when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// Reader is the document lookup surface the engine traverses.
type Reader interface {
	FindOne(ctx context.Context, collection, id string) (*models.Document, error)
	FindMany(ctx context.Context, refs []models.Ref) (map[models.Ref]*models.Document, error)
}

// Engine resolves _ed_parent / _ed_child references into nested maps.
//
// Output shape: {collection: {field: value, childCollection: [{...}, ...]}}.
// The _id, _ed_parent and _ed_child keys never appear in the output;
// _ed_attachment is kept as a list of blob ids.
type Engine struct {
	docs     Reader
	logger   *slog.Logger
	maxDepth int
}

// New returns an engine reading from docs.
func New(docs Reader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		docs:     docs,
		logger:   logger.With("component", "graph"),
		maxDepth: models.TraversalMaxDepth,
	}
}

// Find returns the target document with up to parentDepth ancestors (the
// direct path only) and childDepth levels of descendants.
func (e *Engine) Find(ctx context.Context, collection, id string, parentDepth, childDepth int, exclusion []string) (map[string]any, error) {
	doc, err := e.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	excluded := exclusionSet(exclusion)
	visited := map[models.Ref]struct{}{doc.Ref(): {}}

	node := render(doc, excluded)
	if depth := e.clamp(childDepth); depth > 0 {
		if err := e.attachChildren(ctx, node, doc, depth, visited, excluded); err != nil {
			return nil, err
		}
	}

	current, currentNode := doc, node
	for i := 0; i < e.clamp(parentDepth) && current.Parent != nil; i++ {
		parent, err := e.parentOf(ctx, current, visited)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		parentNode := render(parent, excluded)
		parentNode[current.Collection] = []any{currentNode}
		current, currentNode = parent, parentNode
	}

	return map[string]any{current.Collection: currentNode}, nil
}

// Tree returns every document reachable from the root ancestor of the
// target document.
func (e *Engine) Tree(ctx context.Context, collection, id string, exclusion []string) (map[string]any, error) {
	doc, err := e.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	root := doc
	seen := map[models.Ref]struct{}{doc.Ref(): {}}
	for i := 0; i < e.maxDepth && root.Parent != nil; i++ {
		parent, err := e.parentOf(ctx, root, seen)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		root = parent
	}
	if root.Parent != nil {
		e.logger.Warn("root search stopped before reaching a document without parent",
			"collection", collection, "document_id", id, "max_depth", e.maxDepth)
	}

	excluded := exclusionSet(exclusion)
	visited := map[models.Ref]struct{}{root.Ref(): {}}
	node := render(root, excluded)
	if err := e.attachChildren(ctx, node, root, e.maxDepth, visited, excluded); err != nil {
		return nil, err
	}
	return map[string]any{root.Collection: node}, nil
}

func (e *Engine) load(ctx context.Context, collection, id string) (*models.Document, error) {
	doc, err := e.docs.FindOne(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return doc, nil
}

// parentOf returns nil when the parent is dangling or already visited.
func (e *Engine) parentOf(ctx context.Context, doc *models.Document, visited map[models.Ref]struct{}) (*models.Document, error) {
	ref := *doc.Parent
	if _, ok := visited[ref]; ok {
		e.logger.Warn("reference cycle", "from", doc.Ref().String(), "to", ref.String())
		return nil, nil
	}
	parent, err := e.docs.FindOne(ctx, ref.Collection, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("load parent %s: %w", ref, err)
	}
	if parent == nil {
		e.logger.Warn("dangling parent reference", "from", doc.Ref().String(), "to", ref.String())
		return nil, nil
	}
	visited[ref] = struct{}{}
	return parent, nil
}

func (e *Engine) attachChildren(ctx context.Context, node map[string]any, doc *models.Document, depth int, visited map[models.Ref]struct{}, excluded map[string]struct{}) error {
	if depth <= 0 || len(doc.Children) == 0 {
		return nil
	}

	refs := make([]models.Ref, 0, len(doc.Children))
	for _, ref := range doc.Children {
		if _, ok := visited[ref]; ok {
			e.logger.Warn("reference cycle", "from", doc.Ref().String(), "to", ref.String())
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil
	}

	found, err := e.docs.FindMany(ctx, refs)
	if err != nil {
		return fmt.Errorf("load children of %s: %w", doc.Ref(), err)
	}

	for _, ref := range refs {
		child, ok := found[ref]
		if !ok {
			e.logger.Warn("dangling child reference", "from", doc.Ref().String(), "to", ref.String())
			continue
		}
		if _, ok := visited[ref]; ok {
			continue
		}
		visited[ref] = struct{}{}

		childNode := render(child, excluded)
		if err := e.attachChildren(ctx, childNode, child, depth-1, visited, excluded); err != nil {
			return err
		}
		list, _ := node[ref.Collection].([]any)
		node[ref.Collection] = append(list, childNode)
	}
	return nil
}

func (e *Engine) clamp(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > e.maxDepth {
		return e.maxDepth
	}
	return depth
}

func render(doc *models.Document, excluded map[string]struct{}) map[string]any {
	out := make(map[string]any, len(doc.Fields)+1)
	for key, value := range doc.Fields {
		if _, skip := excluded[key]; skip {
			continue
		}
		out[key] = value
	}
	if len(doc.Attachments) > 0 {
		if _, skip := excluded[models.FieldAttachment]; !skip {
			out[models.FieldAttachment] = append([]string(nil), doc.Attachments...)
		}
	}
	return out
}

func exclusionSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field != "" {
			set[field] = struct{}{}
		}
	}
	return set
}
