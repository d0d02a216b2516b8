package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"edmanweb/internal/models"
)

// ErrInvalidTree marks input that cannot be mapped to documents.
var ErrInvalidTree = errors.New("invalid document tree")

// Writer persists a batch of documents atomically.
type Writer interface {
	InsertDocuments(ctx context.Context, docs []*models.Document) error
}

// Import stores a nested structure in the Tree output format and returns
// the refs of the created documents, root first.
//
// Object values and lists of objects become child documents in the
// collection named by their key; everything else is kept as a field.
func Import(ctx context.Context, w Writer, tree map[string]any) ([]models.Ref, error) {
	if len(tree) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one root collection, got %d", ErrInvalidTree, len(tree))
	}

	var docs []*models.Document
	for collection, value := range tree {
		body, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: root %q must be an object", ErrInvalidTree, collection)
		}
		if _, err := flatten(collection, body, nil, 0, &docs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
		}
	}

	if err := w.InsertDocuments(ctx, docs); err != nil {
		return nil, err
	}

	refs := make([]models.Ref, len(docs))
	for i, doc := range docs {
		refs[i] = doc.Ref()
	}
	return refs, nil
}

func flatten(collection string, body map[string]any, parent *models.Ref, depth int, out *[]*models.Document) (*models.Document, error) {
	if err := models.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if depth > models.TraversalMaxDepth {
		return nil, fmt.Errorf("tree nesting exceeds %d levels", models.TraversalMaxDepth)
	}

	doc := &models.Document{
		Collection: collection,
		ID:         models.NewID(),
		Parent:     parent,
		Fields:     map[string]any{},
	}
	*out = append(*out, doc)
	self := doc.Ref()

	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := body[key]
		switch key {
		case models.FieldID, models.FieldParent, models.FieldChildren:
			continue
		case models.FieldAttachment:
			// Blob references are only created by an upload.
			if !isEmptyList(value) {
				return nil, fmt.Errorf("%s in %s: attachments can only be added by upload", models.FieldAttachment, collection)
			}
			continue
		}

		children, ok := childBodies(value)
		if !ok {
			doc.Fields[key] = value
			continue
		}
		for _, childBody := range children {
			child, err := flatten(key, childBody, &self, depth+1, out)
			if err != nil {
				return nil, err
			}
			doc.Children = append(doc.Children, child.Ref())
		}
	}

	return doc, nil
}

// childBodies reports whether value describes child documents.
func childBodies(value any) ([]map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}, true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

func isEmptyList(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
